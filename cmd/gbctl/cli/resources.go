package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/spf13/cobra"
)

// resourceCommand groups the verbs one family supports
func (a *app) resourceCommand(res billing.Resource) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(res),
		Short: fmt.Sprintf("Operations on %s.", res),
	}

	for _, verb := range res.Verbs() {
		switch verb {
		case billing.List:
			cmd.AddCommand(a.listCommand(res))
		case billing.Detail:
			cmd.AddCommand(a.detailCommand(res))
		case billing.Create:
			cmd.AddCommand(a.createCommand(res))
		case billing.Update:
			cmd.AddCommand(a.updateCommand(res))
		case billing.Confirm, billing.Reject:
			cmd.AddCommand(a.statusCommand(res, verb))
		}
	}
	return cmd
}

func (a *app) listCommand(res billing.Resource) *cobra.Command {
	var filters []string

	cmd := &cobra.Command{
		Use:     "list",
		Short:   fmt.Sprintf("List %s.", res),
		Example: fmt.Sprintf("  gbctl %s list --filter limit=10 --filter holder_id=p1,p2", res),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := parseFilters(filters)
			if err != nil {
				return err
			}
			return a.call(cmd, res, billing.List, func(ctx context.Context, c *billing.Client) (*billing.Response, error) {
				return c.List(ctx, res, f)
			})
		},
	}
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "list filter as key=value; comma values become arrays (repeatable)")
	return cmd
}

func (a *app) detailCommand(res billing.Resource) *cobra.Command {
	params := res.DetailParams()
	placeholders := make([]string, len(params))
	for i, p := range params {
		placeholders[i] = p + "=<value>"
	}

	return &cobra.Command{
		Use:   "detail " + strings.Join(placeholders, " "),
		Short: fmt.Sprintf("Fetch one item of %s.", res),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilters(args)
			if err != nil {
				return err
			}
			return a.call(cmd, res, billing.Detail, func(ctx context.Context, c *billing.Client) (*billing.Response, error) {
				return c.Detail(ctx, res, f)
			})
		},
	}
}

func (a *app) createCommand(res billing.Resource) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "create",
		Short: fmt.Sprintf("Create an item of %s.", res),
		Long:  "The request body is a JSON object given with --data, read from a file with @file, or from stdin with -.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := readPayload(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}
			return a.call(cmd, res, billing.Create, func(ctx context.Context, c *billing.Client) (*billing.Response, error) {
				return c.Create(ctx, res, payload)
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON request body, @file, or - for stdin")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (a *app) updateCommand(res billing.Resource) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "update",
		Short: fmt.Sprintf("Update an item of %s.", res),
		Long: fmt.Sprintf("The JSON object given with --data identifies the item and carries at least one of: %s.",
			strings.Join(res.UpdateFields(), ", ")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := readPayload(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}
			id, fields := splitUpdate(res, payload)
			return a.call(cmd, res, billing.Update, func(ctx context.Context, c *billing.Client) (*billing.Response, error) {
				return c.Update(ctx, res, id, fields)
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON request body, @file, or - for stdin")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (a *app) statusCommand(res billing.Resource, verb billing.Verb) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   string(verb) + " <uuid>",
		Short: fmt.Sprintf("%s a pending item of %s.", capitalize(string(verb)), res),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, res, verb, func(ctx context.Context, c *billing.Client) (*billing.Response, error) {
				if verb == billing.Confirm {
					return c.Confirm(ctx, res, args[0], description)
				}
				return c.Reject(ctx, res, args[0], description)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "status description stored with the transaction")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

// readPayload decodes a JSON object from data, a file named "@path", or stdin for "-"
func readPayload(stdin io.Reader, data string) (map[string]any, error) {
	var raw []byte
	switch {
	case data == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		raw = b
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		raw = []byte(data)
	}

	// numbers stay literal so amounts keep their precision
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("--data must be a JSON object")
	}
	return payload, nil
}

// splitUpdate separates the family's mutable fields from the identifying ones
func splitUpdate(res billing.Resource, payload map[string]any) (billing.Filters, billing.Filters) {
	mutable := make(map[string]bool)
	for _, f := range res.UpdateFields() {
		mutable[f] = true
	}

	id, fields := billing.Filters{}, billing.Filters{}
	for k, v := range payload {
		if mutable[k] {
			fields[k] = v
		} else {
			id[k] = v
		}
	}
	return id, fields
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
