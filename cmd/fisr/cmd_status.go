package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *options) *cobra.Command {
	var (
		prices bool
		logs   int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show config, holdings, cash and recent events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			h := a.handlers()
			if !prices {
				h.Source = nil
			}
			snap, err := h.Snapshot(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			recent, err := a.ledger.ListLogs(ctx, logs, "")
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(snap, recent))
			return nil
		},
	}
	cmd.Flags().BoolVar(&prices, "prices", true, "Value holdings at live prices")
	cmd.Flags().IntVar(&logs, "logs", 5, "Number of recent log entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON")
	return cmd
}
