// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeranaias/skinchat/internal/auth"
	"github.com/jeranaias/skinchat/internal/backend"
	"github.com/jeranaias/skinchat/internal/config"
)

// Version information (overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// app is the state shared by every command: resolved config, logger, and
// the command's I/O streams.
type app struct {
	// flags
	configPath string
	baseURL    string
	logLevel   string
	logFormat  string
	quiet      bool

	cfg    *config.Config
	logger zerolog.Logger

	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

// NewRootCommand builds the skinchat command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "skinchat",
		Short: "Chat with the SkinTech skincare consultant",
		Long: `skinchat streams answers from the SkinTech consultant backend.

Sign in once with "skinchat login", then start an interactive session with
"skinchat chat" or ask a single question with "skinchat ask".`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context(), "")
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.skinchat/config.toml)")
	flags.StringVar(&a.baseURL, "base-url", "", "backend URL (overrides config)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: console or json")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "minimal output")

	root.AddCommand(
		newChatCommand(a),
		newAskCommand(a),
		newLoginCommand(a),
		newRegisterCommand(a),
		newLogoutCommand(a),
		newStatusCommand(a),
		newConfigCommand(a),
	)
	return root
}

// Execute runs the root command until completion or SIGTERM.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		return exitCode(err)
	}
	return ExitSuccess
}

func (a *app) init(cmd *cobra.Command) error {
	a.in = cmd.InOrStdin()
	a.reader = bufio.NewReader(a.in)
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()

	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return &configError{err: err}
	}

	if a.baseURL != "" {
		cfg.Server.BaseURL = a.baseURL
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return &configError{err: err}
	}
	a.cfg = cfg

	logger, err := setupLogging(a.errOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return &configError{err: err}
	}
	a.logger = logger
	return nil
}

// client builds a backend client from the resolved config.
func (a *app) client() *backend.Client {
	logger := a.logger
	return backend.NewClientWithConfig(&backend.ClientConfig{
		BaseURL:      a.cfg.Server.BaseURL,
		ChatPath:     a.cfg.Server.ChatPath,
		Timeout:      a.cfg.Timeout(),
		MaxFrameSize: a.cfg.Server.MaxFrameBytes,
		UserAgent:    "skinchat/" + Version,
		Logger:       &logger,
	})
}

// fileStore returns the on-disk token store.
func (a *app) fileStore() (*auth.FileStore, error) {
	path, err := a.cfg.TokenPath()
	if err != nil {
		return nil, errors.Wrap(err, "resolve token path")
	}
	return auth.NewFileStore(path, auth.WithLogger(a.logger)), nil
}

// tokenStore prefers SKINCHAT_TOKEN over the token file. The FileStore is
// returned as well when in use so callers can watch it.
func (a *app) tokenStore() (auth.TokenStore, *auth.FileStore, error) {
	if a.cfg.Auth.Token != "" {
		return auth.NewMemoryStore(a.cfg.Auth.Token), nil, nil
	}
	fs, err := a.fileStore()
	if err != nil {
		return nil, nil, err
	}
	return fs, fs, nil
}

func (a *app) rendererOptions() renderOptions {
	return renderOptions{
		Markdown:    a.cfg.UI.Markdown && isTerminal(a.out),
		Theme:       a.cfg.UI.Theme,
		Width:       GetTerminalWidth(),
		RefreshHz:   a.cfg.UI.RefreshHz,
		ShowSources: a.cfg.Chat.ShowSources,
	}
}

func (a *app) printf(format string, args ...any) {
	if !a.quiet {
		fmt.Fprintf(a.errOut, format, args...)
	}
}
