package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/deal-assistant/internal/app/sessions"
	"github.com/PabloGalante/deal-assistant/internal/config"
	"github.com/PabloGalante/deal-assistant/internal/domain"
)

var (
	chatVariant string
	chatUser    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Create a deal from the terminal",
	Long: `Start a conversation on stdin/stdout against the configured CRM.

Commands:
  /reset - discard the current deal and start over
  /quit  - leave`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatVariant, "variant", "", "local or delegated (default from config)")
	chatCmd.Flags().StringVar(&chatUser, "user", "cli", "User id recorded in the archive")
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if chatVariant == "" {
		chatVariant = cfg.DefaultVariant
	}

	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return chatLoop(cmd, a.sessions, domain.UserID(chatUser), domain.Variant(chatVariant))
}

func chatLoop(cmd *cobra.Command, svc *sessions.Service, user domain.UserID, variant domain.Variant) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	started, err := svc.StartSession(ctx, sessions.StartSessionInput{UserID: user, Variant: variant})
	if err != nil {
		return err
	}
	id := started.Session.ID
	printAssistant(out, started.Turns)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()

		switch strings.TrimSpace(line) {
		case "/quit", "/exit":
			return nil
		case "/reset":
			reset, err := svc.ResetSession(ctx, id)
			if err != nil {
				return err
			}
			printAssistant(out, reset.Turns)
			continue
		}

		res, err := svc.SendMessage(ctx, sessions.SendMessageInput{SessionID: id, Text: line})
		switch {
		case errors.Is(err, sessions.ErrEmptyInput):
			continue
		case errors.Is(err, sessions.ErrUnavailable):
			fmt.Fprintln(out, "assistant unavailable; type /reset to retry")
			continue
		case err != nil:
			return err
		}
		printAssistant(out, res.Turns)
		if res.Created != nil {
			fmt.Fprintf(out, "  (deal %s)\n", res.Created.ID)
		}
	}
}

func printAssistant(w io.Writer, turns []domain.Turn) {
	for _, t := range turns {
		if t.Speaker == domain.SpeakerAssistant {
			fmt.Fprintln(w, t.Text)
		}
	}
}
