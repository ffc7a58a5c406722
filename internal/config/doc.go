// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the tgsearch configuration.
//
// Precedence is ENV > YAML file > defaults. The YAML file is parsed strictly: unknown
// keys fail the load. A Holder keeps the current AppConfig behind an atomic pointer and
// reloads it when the file changes; only request-time settings (channel lists, blocklist,
// search timeouts) take effect without a restart.
package config
