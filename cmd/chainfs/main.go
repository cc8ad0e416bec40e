// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// chainfs mounts a chainfs image as a FUSE filesystem and serves it
// until interrupted. The backing medium is a regular image file or a
// raw block device; --create-image formats a fresh sparse image when
// the file does not exist yet.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/chainfs/lib/blockdev"
	"github.com/bureau-foundation/chainfs/lib/chainfs"
	chainfsfuse "github.com/bureau-foundation/chainfs/lib/chainfs/fuse"
	"github.com/bureau-foundation/chainfs/lib/clock"
	"github.com/bureau-foundation/chainfs/lib/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath      string
		devicePath      string
		mountpoint      string
		allowOther      bool
		createImageSize int64
		logLevel        string
	)

	flagSet := pflag.NewFlagSet("chainfs", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML configuration file (optional)")
	flagSet.StringVar(&devicePath, "device", "", "image file or block device backing the filesystem")
	flagSet.StringVar(&mountpoint, "mountpoint", "", "directory to mount the filesystem on")
	flagSet.BoolVar(&allowOther, "allow-other", false, "permit other users to access the mount")
	flagSet.Int64Var(&createImageSize, "create-image", 0, "create the image file at this size in bytes if it does not exist")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Flags override file values.
	if flagSet.Changed("device") {
		cfg.Device = devicePath
	}
	if flagSet.Changed("mountpoint") {
		cfg.Mountpoint = mountpoint
	}
	if flagSet.Changed("allow-other") {
		cfg.AllowOther = allowOther
	}
	if flagSet.Changed("create-image") {
		cfg.CreateImageSize = createImageSize
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var device *blockdev.Device
	if cfg.CreateImageSize > 0 {
		device, err = blockdev.Create(cfg.Device, cfg.CreateImageSize)
	} else {
		device, err = blockdev.Open(cfg.Device)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			logger.Error("failed to close device", "error", err)
		}
	}()

	engine, err := chainfs.New(chainfs.Options{
		Device: device,
		Clock:  clock.Real(),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if err := engine.Init(); err != nil {
		return err
	}

	server, err := chainfsfuse.Mount(chainfsfuse.Options{
		Mountpoint: cfg.Mountpoint,
		FS:         engine,
		AllowOther: cfg.AllowOther,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := server.Unmount(); err != nil {
			logger.Error("failed to unmount", "mountpoint", cfg.Mountpoint, "error", err)
		} else {
			logger.Info("unmounted", "mountpoint", cfg.Mountpoint)
		}
	}()

	sb := engine.Superblock()
	logger.Info("chainfs serving",
		"device", cfg.Device,
		"mountpoint", cfg.Mountpoint,
		"next_ino", sb.NextIno,
		"next_free", sb.NextFree,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
