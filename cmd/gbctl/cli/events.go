package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// eventsCommand follows a billing stub's transaction feed
func (a *app) eventsCommand() *cobra.Command {
	var (
		kinds []string
		count int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream transaction events from a billing stub.",
		Example: `  gbctl events
  gbctl events --kind transfers --kind exchanges --count 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := billing.APIPrefix + "events/?"
			if len(kinds) > 0 {
				path += billing.EncodeQuery(billing.Filters{"kind": kinds})
			}

			u, header, err := a.client.Presign(path, nil)
			if err != nil {
				return err
			}
			u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)

			conn, resp, err := websocket.DefaultDialer.DialContext(cmd.Context(), u.String(), header)
			if err != nil {
				if resp != nil {
					return fmt.Errorf("failed to subscribe: %w (status %d)", err, resp.StatusCode)
				}
				return fmt.Errorf("failed to subscribe: %w", err)
			}
			defer conn.Close()
			a.logger.Info("subscribed to events", "url", u.String())

			out := cmd.OutOrStdout()
			for seen := 0; count == 0 || seen < count; {
				var msg struct {
					Type    string          `json:"type"`
					Payload json.RawMessage `json:"payload"`
				}
				if err := conn.ReadJSON(&msg); err != nil {
					return fmt.Errorf("event stream ended: %w", err)
				}
				if msg.Type != "transaction" {
					a.logger.Debug("control message", "type", msg.Type)
					continue
				}
				fmt.Fprintln(out, string(msg.Payload))
				seen++
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only follow these families (adjustments, transfers, exchanges)")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events (default follow forever)")
	return cmd
}
