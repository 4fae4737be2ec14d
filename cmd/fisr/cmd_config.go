package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/eventlog"
	httpContracts "github.com/sawpanic/fisr/internal/http"
	"github.com/sawpanic/fisr/internal/infrastructure/db"
	"github.com/sawpanic/fisr/internal/persistence"
)

// configStore is the runtime config surface shared by the local ledger and a remote dashboard
type configStore interface {
	List(ctx context.Context) ([]persistence.ConfigEntry, error)
	Get(ctx context.Context, key string) (float64, error)
	Set(ctx context.Context, key string, value float64) error
	Close() error
}

type localConfig struct {
	manager *db.Manager
	journal *eventlog.Journal
}

func openLocalConfig(opts *options) (*localConfig, error) {
	cfg, err := opts.requireConfig()
	if err != nil {
		return nil, err
	}
	m, err := db.NewManager(cfg.Database)
	if err != nil {
		return nil, err
	}
	ledger := m.Ledger()
	return &localConfig{
		manager: m,
		journal: eventlog.NewJournal(ledger, log.Logger, func() string {
			return ledger.Now().Format(persistence.TimestampLayout)
		}),
	}, nil
}

func (l *localConfig) List(ctx context.Context) ([]persistence.ConfigEntry, error) {
	return l.manager.Ledger().ListConfig(ctx)
}

func (l *localConfig) Get(ctx context.Context, key string) (float64, error) {
	return l.manager.Ledger().GetConfig(ctx, key)
}

func (l *localConfig) Set(ctx context.Context, key string, value float64) error {
	if err := domain.ValidateConfigValue(key, value); err != nil {
		return err
	}
	if err := l.manager.Ledger().UpdateConfig(ctx, key, value); err != nil {
		return err
	}
	return l.journal.Recordf(ctx, domain.LevelInfo, "Operator set %s to %.2f", key, value)
}

func (l *localConfig) Close() error { return l.manager.Close() }

// remoteConfig talks to a running dashboard's /api/config endpoints
type remoteConfig struct {
	client *resty.Client
}

func newRemoteConfig(baseURL string) *remoteConfig {
	return &remoteConfig{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(10*time.Second).
			SetHeader("Accept", "application/json"),
	}
}

func (r *remoteConfig) List(ctx context.Context) ([]persistence.ConfigEntry, error) {
	var out httpContracts.ConfigResponse
	resp, err := r.client.R().SetContext(ctx).SetResult(&out).SetError(&httpContracts.ErrorResponse{}).Get("/api/config")
	if err := remoteError(resp, err); err != nil {
		return nil, err
	}
	return out.Config, nil
}

func (r *remoteConfig) Get(ctx context.Context, key string) (float64, error) {
	var out persistence.ConfigEntry
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("key", key).
		SetResult(&out).
		SetError(&httpContracts.ErrorResponse{}).
		Get("/api/config/{key}")
	if err := remoteError(resp, err); err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (r *remoteConfig) Set(ctx context.Context, key string, value float64) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("key", key).
		SetBody(httpContracts.ConfigUpdateRequest{Value: &value}).
		SetError(&httpContracts.ErrorResponse{}).
		Put("/api/config/{key}")
	return remoteError(resp, err)
}

func (r *remoteConfig) Close() error { return nil }

func remoteError(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("dashboard request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	if e, ok := resp.Error().(*httpContracts.ErrorResponse); ok && e.Message != "" {
		if resp.StatusCode() == 404 {
			return fmt.Errorf("%w: %s", persistence.ErrConfigMissing, e.Message)
		}
		return fmt.Errorf("dashboard returned %d: %s", resp.StatusCode(), e.Message)
	}
	return fmt.Errorf("dashboard returned %d", resp.StatusCode())
}

func newConfigCmd(opts *options) *cobra.Command {
	var (
		remote string
		yes    bool
	)
	open := func() (configStore, error) {
		if remote != "" {
			return newRemoteConfig(remote), nil
		}
		return openLocalConfig(opts)
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change runtime config (kill_switch, target_duration)",
	}
	cmd.PersistentFlags().StringVar(&remote, "remote", "", "Dashboard base URL, e.g. http://127.0.0.1:8080")

	list := &cobra.Command{
		Use:         "list",
		Short:       "List all config keys",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %g\n", e.Key, e.Value)
			}
			return nil
		},
	}

	get := &cobra.Command{
		Use:         "get KEY",
		Short:       "Print one config value",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			v, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, persistence.ErrConfigMissing) {
				return fmt.Errorf("%s is not set; run 'fisr init' to seed defaults", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%g\n", v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a mutable config value",
		Long: `Change kill_switch (0 halts new orders, 1 resumes) or target_duration (years).
Changing kill_switch asks for confirmation on a terminal unless --yes is given.`,
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("value must be a number: %w", err)
			}
			if err := domain.ValidateConfigValue(key, value); err != nil {
				return err
			}

			if key == domain.ConfigKillSwitch && !yes && term.IsTerminal(int(os.Stdin.Fd())) {
				ok, err := confirmKillSwitch(value)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Set(cmd.Context(), key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %g\n", key, value)
			return nil
		},
	}
	set.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the kill switch confirmation")

	cmd.AddCommand(list, get, set)
	return cmd
}

func confirmKillSwitch(value float64) (bool, error) {
	msg := "Resume trading (kill_switch=1)?"
	if value <= 0 {
		msg = "Halt all new orders (kill_switch=0)?"
	}
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: msg, Default: false}, &ok)
	return ok, err
}
