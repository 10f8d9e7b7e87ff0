// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupLogging configures the global logger. Logs always go to w (stderr)
// so they never interleave with an answer written to stdout.
func setupLogging(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), err
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = w
	if strings.ToLower(format) != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(w) || !ColorsEnabled(),
		}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}
