// Package cli implements the gbctl commands
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/alexbotov/gaming-billing/internal/config"
	"github.com/alexbotov/gaming-billing/internal/database"
	"github.com/alexbotov/gaming-billing/internal/journal"
	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/spf13/cobra"
)

// app is the state shared by the subcommands of one invocation
type app struct {
	opts    *RootOptions
	cfg     *config.Config
	logger  *slog.Logger
	client  *billing.Client
	journal *journal.Service
	db      *database.DB
}

// New creates the gbctl root command
func New() *cobra.Command {
	a := &app{opts: &RootOptions{}}

	cmd := &cobra.Command{
		Use:               "gbctl",
		Short:             "Call the gaming billing currencies API with signed requests.",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.db != nil {
				_ = a.db.Close()
			}
		},
	}
	a.opts.AddFlags(cmd)

	for _, res := range billing.Resources() {
		cmd.AddCommand(a.resourceCommand(res))
	}
	cmd.AddCommand(a.signCommand())
	cmd.AddCommand(a.eventsCommand())
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := a.opts.Validate(); err != nil {
		return err
	}

	a.cfg = config.Load()
	a.opts.Apply(a.cfg)
	a.logger = a.opts.NewLogger(cmd.ErrOrStderr())
	a.client = billing.NewClient(a.cfg.Client.ToClientConfig())

	if a.cfg.Journal.DSN == "" {
		return nil
	}
	db, err := database.New(a.cfg.Journal.Driver, a.cfg.Journal.DSN)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return err
	}
	a.db = db
	a.journal = journal.New(db.DB)
	return nil
}

// call runs one operation with the command timeout, records it and prints the body
func (a *app) call(cmd *cobra.Command, res billing.Resource, verb billing.Verb,
	fn func(ctx context.Context, c *billing.Client) (*billing.Response, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Client.Timeout)
	defer cancel()

	a.logger.Debug("calling billing API", "resource", res, "verb", verb, "endpoint", a.cfg.Client.Endpoint)
	resp, err := fn(ctx, a.client)

	if a.journal != nil {
		if jErr := a.journal.Log(ctx, a.cfg.Client.Service, res, verb, journal.WithResult(resp, err)); jErr != nil {
			a.logger.Warn("failed to record operation", "error", jErr)
		}
	}

	if resp != nil {
		writeBody(cmd.OutOrStdout(), resp.Body)
	}
	if err != nil {
		a.logger.Error("operation failed", "resource", res, "verb", verb, "error", err)
		return err
	}
	a.logger.Info("operation succeeded", "resource", res, "verb", verb, "status", resp.StatusCode)
	return nil
}

// writeBody prints a JSON body indented, or as is when it is not JSON
func writeBody(w io.Writer, body []byte) {
	if len(bytes.TrimSpace(body)) == 0 {
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		w.Write(body)
		fmt.Fprintln(w)
		return
	}
	out.WriteByte('\n')
	out.WriteTo(w)
}
