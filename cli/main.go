// Package main provides a terminal client for the Sahabat gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/couchrishi/sahabat/internal/agentapi"
)

// options holds the flags shared by every command.
type options struct {
	gateway string
	app     string
	user    string
	session string
	tier    string
	timeout time.Duration
}

func (o *options) client() *gatewayClient {
	return newGatewayClient(o.gateway, o.timeout)
}

// ensureSession returns the session to talk to, creating a fresh one when none was given.
func (o *options) ensureSession(cmd *cobra.Command) (string, error) {
	if o.session != "" {
		return o.session, nil
	}
	sessionID := "session-" + uuid.New().String()
	if _, err := o.client().CreateSession(cmd.Context(), o.app, o.user, sessionID, o.tier); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return sessionID, nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "sahabat",
		Short: "Sahabat - chat with the Sahabat AI gateway",
		Long: `Sahabat is a terminal client for the Sahabat AI gateway.

Examples:
  sahabat session create --tier Paid
  sahabat chat "Explain how monsoons form"
  sahabat chat --session s1 "Draw a picture of a lighthouse"
  sahabat ws --tier Free`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.gateway, "gateway", envOr("SAHABAT_GATEWAY", "http://localhost:8000"), "gateway base URL")
	flags.StringVar(&opts.app, "app", agentapi.DefaultAppName, "app name")
	flags.StringVar(&opts.user, "user", envOr("SAHABAT_USER", "cli-user"), "user id")
	flags.StringVar(&opts.session, "session", "", "session id (a new session is created when empty)")
	flags.StringVar(&opts.tier, "tier", "Free", "subscription tier: Paid or Free")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall request timeout")

	root.AddCommand(newSessionCmd(opts), newChatCmd(opts), newWSCmd(opts))
	return root
}

func newSessionCmd(opts *options) *cobra.Command {
	session := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions",
	}
	session.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a session through the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := opts.session
			if sessionID == "" {
				sessionID = "session-" + uuid.New().String()
			}
			body, err := opts.client().CreateSession(cmd.Context(), opts.app, opts.user, sessionID, opts.tier)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "Session created: ")
			fmt.Fprintln(out, sessionID)
			fmt.Fprintln(out, string(body))
			return nil
		},
	})
	return session
}

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := opts.ensureSession(cmd)
			if err != nil {
				return err
			}

			req := agentapi.NewTextRequest(opts.app, opts.user, sessionID, strings.Join(args, " "))
			if cmd.Flags().Changed("tier") && opts.session != "" {
				req.StateDelta = map[string]any{"user_tier": opts.tier}
			}

			printer := newTurnPrinter(cmd.OutOrStdout())
			printer.begin()
			if err := opts.client().Chat(cmd.Context(), req, printer.handle); err != nil {
				printer.fail()
				return err
			}
			printer.finish()
			return nil
		},
	}
}

func envOr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.Red("Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
