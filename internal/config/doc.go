// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates skinchat configuration.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (SKINCHAT_*)
//   - ~/.skinchat/config.toml
//   - Built-in defaults
//
// SKINCHAT_HOME moves the whole ~/.skinchat directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := backend.NewClientWithConfig(&backend.ClientConfig{
//	    BaseURL: cfg.Server.BaseURL,
//	    Timeout: cfg.Timeout(),
//	})
package config
