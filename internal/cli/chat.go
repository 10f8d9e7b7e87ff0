// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/skinchat/internal/auth"
	"github.com/jeranaias/skinchat/internal/chat"
	"github.com/jeranaias/skinchat/internal/export"
	"github.com/jeranaias/skinchat/internal/model"
	"github.com/jeranaias/skinchat/internal/util"
)

// newChatCommand starts the interactive session.
//
// Interactive commands:
//
//	/help, /h           Show available commands
//	/new, /clear        Start a new conversation
//	/resume ID          Continue a backend conversation
//	/cancel             Cancel the current response
//	/history            Show this conversation
//	/save [FILE]        Save this conversation (.md or .json)
//	/status, /s         Show session status
//	/quit, /q           Exit
//	Ctrl+C              Cancel the current response
//	Ctrl+D              Exit
func newChatCommand(a *app) *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context(), conversationID)
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue an existing conversation")
	return cmd
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineEditor provides input history and line editing for the REPL.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor(historyFile string) *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	e := &lineEditor{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return e
}

// ReadInput reads a line with history navigation.
func (e *lineEditor) ReadInput(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with 0600 permissions and restores the terminal.
func (e *lineEditor) Close() error {
	var buf bytes.Buffer
	if _, err := e.line.WriteHistory(&buf); err == nil && e.historyFile != "" {
		_ = util.AtomicWriteFile(e.historyFile, buf.Bytes(), 0600)
	}
	return e.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

type repl struct {
	a      *app
	sess   *chat.Session
	store  auth.TokenStore
	out    io.Writer
	errOut io.Writer
}

func (a *app) runChat(ctx context.Context, conversationID string) error {
	store, fileStore, err := a.tokenStore()
	if err != nil {
		return err
	}

	rp := &repl{a: a, store: store, out: a.out, errOut: a.errOut}
	rp.sess = chat.New(a.client(),
		chat.WithLogger(a.logger),
		chat.WithErrorHandler(rp.onError),
	)
	r := newRenderer(a.out, a.errOut, a.rendererOptions())
	rp.sess.State().Subscribe(r.observe)
	if conversationID != "" {
		rp.sess.Resume(conversationID)
	}

	historyFile, err := a.cfg.HistoryPath()
	if err != nil {
		historyFile = ""
	}
	editor := newLineEditor(historyFile)
	defer editor.Close()

	if !a.quiet {
		rp.printWelcome()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, gctx := errgroup.WithContext(ctx)

	if fileStore != nil {
		eg.Go(func() error {
			err := fileStore.Watch(gctx, rp.onTokenChange)
			if err != nil {
				a.logger.Warn().Err(err).Msg("token file watch disabled")
			}
			return nil
		})
	}

	eg.Go(func() error {
		defer cancel()
		defer rp.sess.Close()
		return rp.loop(gctx, editor)
	})

	return eg.Wait()
}

func (rp *repl) loop(ctx context.Context, editor *lineEditor) error {
	prompt := "you> "
	if ColorsEnabled() {
		prompt = PromptStyle.Render(prompt)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := editor.ReadInput(prompt)
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or closed stdin.
			fmt.Fprintln(rp.out)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := rp.handleSlashCommand(input)
			if err != nil {
				fmt.Fprintf(rp.errOut, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if quit {
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		rp.send(ctx, input)
	}
}

// send runs one turn and waits for it. Ctrl+C cancels the turn but keeps
// the session open.
func (rp *repl) send(ctx context.Context, input string) {
	token, _ := rp.store.Token()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	fmt.Fprintln(rp.out)
	turn, err := rp.sess.Send(ctx, input, token)
	if err != nil {
		fmt.Fprintf(rp.errOut, "%s %v\n", ErrorStyle.Render("[Error]"), requireAuth(err))
		return
	}

	select {
	case <-turn.Done():
	case <-sigCh:
		rp.sess.Cancel()
	case <-ctx.Done():
		rp.sess.Cancel()
	}

	switch turn.State() {
	case chat.TurnCancelled:
		fmt.Fprintln(rp.errOut, WarningStyle.Render("[Cancelled]"))
	case chat.TurnCompleted:
		if rp.a.cfg.Chat.ShowStats {
			stats := turn.Stats()
			fmt.Fprintf(rp.errOut, "%s %s\n", DimStyle.Render("[Stats]"), stats.Format())
		}
	}
	fmt.Fprintln(rp.out)
}

// onError runs on the turn goroutine once per failed turn.
func (rp *repl) onError(_ *chat.Turn, err error) {
	if chat.IsUnauthorized(err) {
		fmt.Fprintf(rp.errOut, "%s %s; %s\n", ErrorStyle.Render("[Auth]"), describe(err), loginHint)
		return
	}
	fmt.Fprintf(rp.errOut, "%s %s\n", ErrorStyle.Render("[Error]"), describe(err))
}

// onTokenChange reports logins and logouts made in another terminal.
func (rp *repl) onTokenChange(_ string, ok bool) {
	if ok {
		rp.a.logger.Info().Msg("signed in from another terminal")
	} else {
		rp.a.logger.Info().Msg("signed out from another terminal")
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes a slash command and reports whether to exit.
func (rp *repl) handleSlashCommand(input string) (bool, error) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return false, nil
	}
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		rp.printHelp()
	case "/new", "/clear", "/c":
		rp.sess.NewConversation()
		fmt.Fprintln(rp.out, SuccessStyle.Render("[New conversation]"))
	case "/resume", "/r":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /resume <conversation-id>")
		}
		rp.sess.Resume(args[0])
		fmt.Fprintf(rp.out, "%s %s\n", SuccessStyle.Render("[Resumed]"), args[0])
	case "/cancel":
		if rp.sess.Active() == nil {
			fmt.Fprintln(rp.out, DimStyle.Render("Nothing to cancel"))
			return false, nil
		}
		rp.sess.Cancel()
		fmt.Fprintln(rp.out, WarningStyle.Render("[Cancelled]"))
	case "/history":
		rp.printHistory()
	case "/save", "/export":
		if len(args) > 1 {
			return false, fmt.Errorf("usage: /save [file.md|file.json]")
		}
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return false, rp.save(path)
	case "/status", "/s":
		rp.printStatus()
	case "/quit", "/q", "/exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return false, nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (rp *repl) printWelcome() {
	fmt.Fprintln(rp.out, TitleStyle.Render("SkinTech skincare consultant"))
	fmt.Fprintln(rp.out, RenderSeparator(30))
	fmt.Fprintf(rp.out, "%s %s\n", RenderLabel("Server:"), ValueStyle.Render(rp.a.cfg.Server.BaseURL))
	if _, ok := rp.store.Token(); ok {
		fmt.Fprintf(rp.out, "%s %s\n", RenderLabel("Account:"), SuccessStyle.Render("signed in"))
	} else {
		fmt.Fprintf(rp.out, "%s %s\n", RenderLabel("Account:"), WarningStyle.Render("not signed in, "+loginHint))
	}
	fmt.Fprintln(rp.out)
	fmt.Fprintln(rp.out, DimStyle.Render("Ask about your skin. Commands: /help, /quit"))
	fmt.Fprintln(rp.out)
}

func (rp *repl) printHelp() {
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/new, /clear", "Start a new conversation"},
		{"/resume ID", "Continue a backend conversation"},
		{"/cancel", "Cancel the current response"},
		{"/history", "Show this conversation"},
		{"/save [FILE]", "Save this conversation (.md or .json)"},
		{"/status, /s", "Show session status"},
		{"/quit, /q", "Exit chat"},
	}

	fmt.Fprintln(rp.out, TitleStyle.Render("Available Commands"))
	for _, c := range commands {
		fmt.Fprintf(rp.out, "  %-16s %s\n", c.cmd, DimStyle.Render(c.desc))
	}
	fmt.Fprintf(rp.out, "  %-16s %s\n", "Ctrl+C", DimStyle.Render("Cancel the current response"))
}

func (rp *repl) printHistory() {
	msgs := rp.sess.State().Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(rp.out, DimStyle.Render("No messages yet"))
		return
	}
	width := GetTerminalWidth() - 16
	for _, msg := range msgs {
		label := ValueStyle.Render(msg.Role.DisplayName())
		if msg.Role == model.RoleAssistant {
			label = AssistantStyle.Render(msg.Role.DisplayName())
		}
		line := fmt.Sprintf("%s %s %s", DimStyle.Render(msg.Timestamp.Format("15:04")), label, msg.Preview(width))
		if msg.IsStreaming() {
			line += " " + DimStyle.Render("(streaming)")
		}
		fmt.Fprintln(rp.out, line)
	}
}

func (rp *repl) save(path string) error {
	if rp.sess.State().Len() == 0 {
		return fmt.Errorf("nothing to save yet")
	}
	opts := export.DefaultOptions()
	opts.IncludeSources = rp.a.cfg.Chat.ShowSources
	written, err := export.ToFile(rp.sess.State().Snapshot(), path, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(rp.out, "%s %s\n", SuccessStyle.Render("[Saved]"), written)
	return nil
}

func (rp *repl) printStatus() {
	state := rp.sess.State()
	conv := state.ConversationID()
	if conv == "" {
		conv = "(new)"
	}
	_, signedIn := rp.store.Token()
	turn := "idle"
	if t := rp.sess.Active(); t != nil {
		turn = t.State().String()
	}

	fmt.Fprintf(rp.out, "%s %s\n", RenderLabel("Server:"), rp.a.cfg.Server.BaseURL)
	fmt.Fprintf(rp.out, "%s %v\n", RenderLabel("Signed in:"), signedIn)
	fmt.Fprintf(rp.out, "%s %s\n", RenderLabel("Conversation:"), conv)
	fmt.Fprintf(rp.out, "%s %s\n", RenderLabel("Title:"), rp.sess.Title())
	fmt.Fprintf(rp.out, "%s %d\n", RenderLabel("Messages:"), state.Len())
	fmt.Fprintf(rp.out, "%s %s\n", RenderLabel("Turn:"), turn)
}
