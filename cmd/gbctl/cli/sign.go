package cli

import (
	"fmt"
	"time"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/spf13/cobra"
)

// signCommand prints the headers a request would carry, for checking a
// receiver's implementation by hand
func (a *app) signCommand() *cobra.Command {
	var (
		timestamp string
		path      string
		body      string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the canonical message and signature of a request.",
		Example: `  gbctl sign --path '/api/currencies/holders/?' --timestamp 2024-05-01T10:00:00.000Z
  gbctl sign --path /api/currencies/holders/create/ --body '{"holder_id":"p1"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if timestamp == "" {
				timestamp = billing.FormatTimestamp(time.Now())
			}

			signer := a.client.Signer()
			sr, err := billing.Sign(signer, timestamp, path, []byte(body))
			if err != nil {
				return err
			}

			names := a.cfg.Client.ToClientConfig().Headers
			header := names.Header(a.cfg.Client.Service, sr)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "message: %s\n", sr.Message())
			for _, name := range []string{names.Service, names.Signature, names.Timestamp, "Content-Type"} {
				fmt.Fprintf(out, "%s: %s\n", name, header.Get(name))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "timestamp to sign (default now)")
	cmd.Flags().StringVar(&path, "path", "", "request path with query, as sent on the wire")
	cmd.Flags().StringVar(&body, "body", "", "request body")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
