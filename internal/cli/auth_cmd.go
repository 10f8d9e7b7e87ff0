// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/skinchat/internal/auth"
	"github.com/jeranaias/skinchat/internal/backend"
)

// MinPasswordLength matches the backend's registration rule.
const MinPasswordLength = 6

type credentialFlags struct {
	username      string
	passwordStdin bool
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "account username (prompted if omitted)")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from stdin")
}

// promptCredentials fills in whatever the flags did not provide.
func (a *app) promptCredentials(f credentialFlags) (backend.Credentials, error) {
	creds := backend.Credentials{Username: strings.TrimSpace(f.username)}

	if creds.Username == "" {
		if f.passwordStdin {
			return creds, errors.New("--username is required with --password-stdin")
		}
		name, err := readLine(a.reader, a.errOut, "Username: ")
		if err != nil {
			return creds, err
		}
		creds.Username = strings.TrimSpace(name)
	}
	if creds.Username == "" {
		return creds, errors.New("username is required")
	}

	if !f.passwordStdin && !isTerminal(a.in) {
		return creds, &TTYRequiredError{Operation: "read a password (use --password-stdin)"}
	}
	pw, err := readPassword(a.reader, a.in, a.errOut, "Password: ")
	if err != nil {
		return creds, err
	}
	if pw == "" {
		return creds, errors.New("password is required")
	}
	creds.Password = pw
	return creds, nil
}

// =============================================================================
// LOGIN
// =============================================================================

func newLoginCommand(a *app) *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store a token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := a.promptCredentials(f)
			if err != nil {
				return err
			}
			return a.login(cmd.Context(), creds)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) login(ctx context.Context, creds backend.Credentials) error {
	store, err := a.fileStore()
	if err != nil {
		return err
	}

	issued := time.Now()
	tok, err := a.client().Login(ctx, creds)
	if err != nil {
		return errors.Wrap(err, "login failed")
	}

	cred := auth.NewCredential(creds.Username, tok, issued)
	if err := store.Save(cred); err != nil {
		return err
	}

	a.logger.Info().Str("username", creds.Username).Msg("signed in")
	a.printf("%s Signed in as %s\n", SuccessStyle.Render("[OK]"), creds.Username)
	if !cred.ExpiresAt.IsZero() {
		a.printf("%s %s\n", DimStyle.Render("Token expires:"), cred.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

// =============================================================================
// REGISTER
// =============================================================================

func newRegisterCommand(a *app) *cobra.Command {
	var (
		f       credentialFlags
		noLogin bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := a.promptCredentials(f)
			if err != nil {
				return err
			}
			if len(creds.Password) < MinPasswordLength {
				return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
			}

			user, err := a.client().Register(cmd.Context(), creds)
			if err != nil {
				if backend.IsConflict(err) {
					return fmt.Errorf("username %q is already taken", creds.Username)
				}
				return errors.Wrap(err, "registration failed")
			}
			a.printf("%s Created account %s\n", SuccessStyle.Render("[OK]"), user.Username)

			if noLogin {
				return nil
			}
			return a.login(cmd.Context(), creds)
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&noLogin, "no-login", false, "do not sign in after registering")
	return cmd
}

// =============================================================================
// LOGOUT
// =============================================================================

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.fileStore()
			if err != nil {
				return err
			}

			if token, ok := store.Token(); ok {
				if err := a.client().Logout(cmd.Context(), token); err != nil {
					a.logger.Warn().Err(err).Msg("backend logout failed; removing local token anyway")
				}
			}
			if err := store.Clear(); err != nil {
				return err
			}
			a.printf("%s Signed out\n", SuccessStyle.Render("[OK]"))
			return nil
		},
	}
}
