// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Check the backend and sign-in state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.status(cmd.Context())
		},
	}
}

func (a *app) status(ctx context.Context) error {
	fmt.Fprintln(a.out, TitleStyle.Render("skinchat status"))
	fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Server:"), a.cfg.Server.BaseURL)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()

	start := time.Now()
	healthErr := a.client().Health(ctx)
	if healthErr != nil {
		fmt.Fprintf(a.out, "%s %s %s\n", RenderLabel("Backend:"), RenderStatus("fail"), describe(healthErr))
	} else {
		fmt.Fprintf(a.out, "%s %s %s\n", RenderLabel("Backend:"), RenderStatus("ok"),
			DimStyle.Render(time.Since(start).Round(time.Millisecond).String()))
	}

	switch {
	case a.cfg.Auth.Token != "":
		fmt.Fprintf(a.out, "%s %s %s\n", RenderLabel("Account:"), RenderStatus("ok"), DimStyle.Render("token from SKINCHAT_TOKEN"))
	default:
		store, err := a.fileStore()
		if err != nil {
			return err
		}
		cred, err := store.Credential()
		switch {
		case err != nil:
			fmt.Fprintf(a.out, "%s %s %v\n", RenderLabel("Account:"), RenderStatus("fail"), err)
		case cred.AccessToken == "":
			fmt.Fprintf(a.out, "%s %s not signed in, %s\n", RenderLabel("Account:"), RenderStatus("warn"), loginHint)
		case cred.Expired(time.Now()):
			fmt.Fprintf(a.out, "%s %s token for %s expired, %s\n", RenderLabel("Account:"), RenderStatus("warn"), cred.Username, loginHint)
		default:
			who := cred.Username
			if who == "" {
				who = "signed in"
			}
			fmt.Fprintf(a.out, "%s %s %s\n", RenderLabel("Account:"), RenderStatus("ok"), who)
		}
	}

	return healthErr
}
