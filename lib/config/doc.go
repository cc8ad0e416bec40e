// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the chainfs
// mount daemon.
//
// Configuration is loaded from a single file passed via the --config
// flag. There are no fallbacks, no ~/.config discovery, and no
// automatic file search; command-line flags override individual
// values after loading. This keeps the effective configuration
// deterministic and auditable.
package config
