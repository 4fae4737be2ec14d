package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/fisr/internal/application"
	"github.com/sawpanic/fisr/internal/infrastructure/db"
	httpapi "github.com/sawpanic/fisr/internal/interfaces/http"
	"github.com/sawpanic/fisr/internal/scheduler"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newInitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the ledger schema and seed default config",
		Long:  "Creates the config, signals, trades and logs tables and seeds kill_switch=1 and target_duration=8 where absent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := db.NewManager(opts.cfg.Database)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Ledger().Init(cmd.Context()); err != nil {
				return fmt.Errorf("init ledger: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ledger initialized (%s %s)\n", m.Driver(), opts.cfg.Database.DSN)
			return nil
		},
	}
}

func newRunCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one rebalance cycle",
		Long:  "Runs a single cycle: read config, price the universe, solve, size, risk-check and mock-fill",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.rebalancer.RunCycle(cmd.Context())
			if asJSON && report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
			} else if report != nil {
				fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the cycle report as JSON")
	return cmd
}

func newScheduleCmd(opts *options) *cobra.Command {
	var (
		list bool
		job  string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the job scheduler (hourly rebalance, end-of-day archive)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				for _, j := range opts.cfg.Scheduler.Jobs {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-16s every %-8s enabled=%t  %s\n",
						j.Name, j.Type, j.Every, j.Enabled, j.Description)
				}
				return nil
			}

			a, err := buildApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := scheduler.New(opts.cfg.Scheduler, a.runners())
			if err != nil {
				return err
			}

			if job != "" {
				res, err := sched.RunJob(cmd.Context(), job)
				if res != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s success=%t duration=%s artifacts=%v\n",
						res.JobName, res.Success, res.Duration.Round(time.Millisecond), res.Artifacts)
				}
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List configured jobs and exit")
	cmd.Flags().StringVar(&job, "job", "", "Run the named job once and exit")
	return cmd
}

func newServeCmd(opts *options) *cobra.Command {
	var withScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API, /metrics and the live log stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			if withScheduler {
				sched, err := scheduler.New(opts.cfg.Scheduler, a.runners())
				if err != nil {
					return err
				}
				go func() {
					if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Error().Err(err).Msg("Scheduler exited")
					}
				}()
			}

			srv := httpapi.NewServer(opts.cfg.Server, a.handlers(), a.metrics, a.hub)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Also run the scheduler in this process")
	return cmd
}

// renderReport prints a short cycle summary
func renderReport(r *application.CycleReport) string {
	out := fmt.Sprintf("Cycle %s in %s (kill_switch=%.0f, target=%.2f)\n",
		r.Outcome, r.Elapsed.Round(time.Millisecond), r.KillSwitch, r.TargetDuration)
	if r.Outcome == application.OutcomeAborted {
		return out
	}
	out += fmt.Sprintf("  Book duration %.2f, drift %.2f: %s\n", r.Decision.Current, r.Decision.Drift, r.Decision.Reason())
	if len(r.Weights) > 0 {
		out += fmt.Sprintf("  Weights %s\n", r.Weights)
	}
	for _, o := range r.Orders {
		line := fmt.Sprintf("  %-8s %s", o.Status, o.Order)
		if o.Decision.Message != "" && o.Status == application.OrderRejected {
			line += " (" + o.Decision.Message + ")"
		}
		out += line + "\n"
	}
	return out
}
