package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/couchrishi/sahabat/internal/agentapi"
)

// wsMessage covers every gateway-to-client message the cli reads.
type wsMessage struct {
	Type      string          `json:"type"`
	Ts        int64           `json:"ts"`
	RequestID string          `json:"request_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// wsClient is a chat client on the gateway's WebSocket endpoint.
type wsClient struct {
	conn      *websocket.Conn
	appName   string
	userID    string
	sessionID string
	history   []agentapi.Message
}

func dialWS(ctx context.Context, addr string) (*wsClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &wsClient{conn: conn}, nil
}

func (c *wsClient) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

// hello binds the connection to the session and waits for hello_ack.
func (c *wsClient) hello(sessionID, userID string) error {
	msg := map[string]any{
		"type":       "hello",
		"ts":         time.Now().UnixMilli(),
		"session_id": sessionID,
		"user_id":    userID,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	var ack wsMessage
	if err := c.conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}
	if ack.Type == "error" {
		return fmt.Errorf("hello failed: %s - %s", ack.Code, ack.Message)
	}
	if ack.Type != "hello_ack" {
		return fmt.Errorf("expected hello_ack, got: %s", ack.Type)
	}

	c.sessionID = ack.SessionID
	c.userID = userID
	return nil
}

// chat sends the conversation so far plus text.
func (c *wsClient) chat(text string) error {
	c.history = append(c.history, agentapi.Message{Role: "user", Content: text})
	return c.conn.WriteJSON(map[string]any{
		"type":       "chat",
		"ts":         time.Now().UnixMilli(),
		"request_id": fmt.Sprintf("req_%d", time.Now().UnixNano()),
		"app_name":   c.appName,
		"user_id":    c.userID,
		"session_id": c.sessionID,
		"messages":   c.history,
	})
}

// readTurn renders messages until the current turn is done or fails.
// Notifications pushed between turns are printed as they come.
func (c *wsClient) readTurn(out io.Writer) error {
	printer := newTurnPrinter(out)
	printer.begin()
	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			printer.fail()
			return fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case "event":
			var ev agentapi.Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				continue
			}
			if err := printer.handle(&ev); err != nil {
				return err
			}
		case "done":
			printer.finish()
			if printer.final != "" {
				c.history = append(c.history, agentapi.Message{Role: "assistant", Content: printer.final})
			}
			return nil
		case "error":
			printer.fail()
			color.New(color.FgRed).Fprintf(out, "%s: %s\n", msg.Code, msg.Message)
			return nil
		default:
			// Out-of-band notifications such as turn_complete.
			color.New(color.Faint).Fprintf(out, "(%s)\n", msg.Type)
		}
	}
}

func newWSCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ws",
		Short: "Chat interactively over the gateway's WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			sessionID, err := opts.ensureSession(cmd)
			if err != nil {
				return err
			}

			addr, err := websocketURL(opts.gateway)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Connecting to %s...\n", addr)

			client, err := dialWS(cmd.Context(), addr)
			if err != nil {
				return err
			}
			defer client.Close()
			client.appName = opts.app

			if err := client.hello(sessionID, opts.user); err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintf(out, "Session established: ")
			fmt.Fprintln(out, client.sessionID)
			fmt.Fprintln(out, "Type a message and press Enter to send. /quit to exit.")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}

				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if input == "/quit" {
					fmt.Fprintln(out, "Bye!")
					return nil
				}

				if err := client.chat(input); err != nil {
					return fmt.Errorf("send: %w", err)
				}
				if err := client.readTurn(out); err != nil {
					return err
				}
			}
		},
	}
}
