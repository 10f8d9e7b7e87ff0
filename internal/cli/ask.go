// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/skinchat/internal/chat"
)

// newAskCommand asks one question and streams the answer to stdout.
//
//	skinchat ask "What's good for dry skin?"
//	echo "Is niacinamide safe with retinol?" | skinchat ask
//	skinchat ask -c abc-123 "And for oily skin?"
func newAskCommand(a *app) *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question",
		Long: `Ask a single question and stream the answer to stdout.

With no arguments the question is read from stdin. Sources and the
conversation id are written to stderr unless --quiet is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if question == "" || question == "-" {
				data, err := io.ReadAll(a.reader)
				if err != nil {
					return errors.Wrap(err, "read question from stdin")
				}
				question = string(data)
			}
			return a.ask(cmd.Context(), question, conversationID)
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue an existing conversation")
	return cmd
}

func (a *app) ask(ctx context.Context, question, conversationID string) error {
	store, _, err := a.tokenStore()
	if err != nil {
		return err
	}
	token, _ := store.Token()

	opts := a.rendererOptions()
	r := newRenderer(a.out, a.errOut, opts)

	sess := chat.New(a.client(), chat.WithLogger(a.logger))
	defer sess.Close()
	sess.State().Subscribe(r.observe)
	if conversationID != "" {
		sess.Resume(conversationID)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	turn, err := sess.Send(ctx, question, token)
	if err != nil {
		return requireAuth(err)
	}

	<-turn.Done()

	switch turn.State() {
	case chat.TurnFailed:
		return requireAuth(&turnError{err: turn.Err()})
	case chat.TurnCancelled:
		a.printf("%s\n", WarningStyle.Render("[Cancelled]"))
		return context.Canceled
	}

	if id := sess.State().ConversationID(); id != "" {
		a.printf("%s %s\n", DimStyle.Render("conversation:"), id)
	}
	if a.cfg.Chat.ShowStats {
		stats := turn.Stats()
		a.printf("%s %s\n", DimStyle.Render("[Stats]"), stats.Format())
	}
	return nil
}
