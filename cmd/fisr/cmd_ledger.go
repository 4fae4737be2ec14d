package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/fisr/internal/archive"
	"github.com/sawpanic/fisr/internal/infrastructure/db"
	"github.com/sawpanic/fisr/internal/persistence"
)

func newTradesCmd(opts *options) *cobra.Command {
	var (
		limit int
		day   dayValue
	)
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Show the trade blotter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := db.NewManager(opts.cfg.Database)
			if err != nil {
				return err
			}
			defer m.Close()
			ledger := m.Ledger()

			var trades []persistence.Trade
			if day.IsSet() {
				now := ledger.Now()
				trades, err = ledger.ListTradesForDay(cmd.Context(), day.In(now.Location(), now))
			} else {
				trades, err = ledger.ListTrades(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTrades(trades))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of most recent trades")
	addDayFlag(cmd.Flags(), &day, "Show every trade of one day (YYYY-MM-DD) instead of the most recent")
	return cmd
}

func newLogsCmd(opts *options) *cobra.Command {
	var (
		limit int
		level levelValue
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the event log, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := db.NewManager(opts.cfg.Database)
			if err != nil {
				return err
			}
			defer m.Close()

			entries, err := m.Ledger().ListLogs(cmd.Context(), limit, level.String())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderLogs(entries))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries")
	cmd.Flags().Var(&level, "level", "Only entries of this level (INFO, ERROR, RISK_REJECT, CRITICAL, STRATEGY_RUN)")
	return cmd
}

func newArchiveCmd(opts *options) *cobra.Command {
	var day dayValue
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Write one day's trades to Parquet (local directory or S3)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, err := db.NewManager(opts.cfg.Database)
			if err != nil {
				return err
			}
			defer m.Close()
			ledger := m.Ledger()

			now := ledger.Now()
			archiver, err := archive.New(ctx, opts.cfg.Archive, ledger, now.Location())
			if err != nil {
				return err
			}
			res, err := archiver.ArchiveDay(ctx, day.In(now.Location(), now.AddDate(0, 0, -1)))
			if errors.Is(err, archive.ErrNothingToArchive) {
				fmt.Fprintf(cmd.OutOrStdout(), "No trades on %s\n", res.Day)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %d trades for %s to %s (%d bytes)\n", res.Rows, res.Day, res.Location, res.Bytes)
			return nil
		},
	}
	addDayFlag(cmd.Flags(), &day, "Day to archive (YYYY-MM-DD, default yesterday)")
	return cmd
}
