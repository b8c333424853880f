// Package cli implements opsctl, an operator console that drives the
// operation lifecycle directly against the configured store.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fieldops/internal/buildinfo"
	"fieldops/internal/config"
	"fieldops/internal/lifecycle"
	"fieldops/internal/maintenance"
	"fieldops/internal/store"
	"fieldops/internal/webhooks"
)

// Deps are the pieces a command needs. Tests swap Open for an in-memory store.
type Deps struct {
	Config config.Config
	Open   func(cfg config.Config) (store.Store, error)
	Now    func() time.Time
	Logger *log.Logger
}

// DefaultDeps reads configuration from the environment (and .env).
func DefaultDeps() (*Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &Deps{
		Config: cfg,
		Open: func(cfg config.Config) (store.Store, error) {
			return store.Open(cfg.DBDriver, cfg.DatabaseURL, cfg.DBMigrate)
		},
		Now:    time.Now,
		Logger: log.New(io.Discard, "", 0),
	}, nil
}

// session is one command's view of the lifecycle: an engine over an open store.
type session struct {
	store  store.Store
	engine *lifecycle.Engine
	pub    *webhooks.Publisher
	now    time.Time
}

func (d *Deps) open() (*session, error) {
	st, err := d.Open(d.Config)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rules := maintenance.DefaultRules()
	if d.Config.MaintenanceRules != "" {
		if rules, err = maintenance.LoadRules(d.Config.MaintenanceRules); err != nil {
			closeStore(st)
			return nil, err
		}
	}
	pub := webhooks.NewPublisher(st, d.Logger)
	coord := lifecycle.NewCoordinator(st, maintenance.NewEvaluator(st, rules), &webhooks.AlertNotifier{Alerts: st, Publisher: pub}, d.Config.SideEffectAttempts, d.Logger)
	return &session{
		store:  st,
		engine: lifecycle.NewEngine(st, st, coord, d.Config.Lifecycle(), d.Logger),
		pub:    pub,
		now:    d.Now(),
	}, nil
}

func (s *session) Close() { closeStore(s.store) }

func closeStore(st store.Store) {
	if c, ok := st.(io.Closer); ok {
		_ = c.Close()
	}
}

// run opens a session for the duration of fn.
func (d *Deps) run(fn func(ctx context.Context, s *session) error) error {
	s, err := d.open()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(context.Background(), s)
}

// RootCmd assembles the opsctl command tree.
func RootCmd(d *Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "opsctl",
		Short:         "Plan, run and close out farm equipment operations",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(operationCmd(d))
	root.AddCommand(availabilityCmd(d))
	root.AddCommand(vehicleCmd(d))
	root.AddCommand(alertCmd(d))
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "opsctl %s", info["version"])
			if info["commit"] != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", info["commit"])
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("!")
)

// floatFlag returns the flag's value only when it was given.
func floatFlag(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}

func printWarnings(w io.Writer, warnings []lifecycle.Warning) {
	for _, wn := range warnings {
		fmt.Fprintf(w, "%s %s: %s\n", warnMark, color.New(color.FgYellow).Sprint(wn.Code), wn.Message)
	}
}

func statusText(status string) string {
	switch status {
	case "active":
		return color.New(color.FgCyan).Sprint(status)
	case "completed":
		return color.New(color.FgGreen).Sprint(status)
	case "cancelled":
		return color.New(color.FgRed).Sprint(status)
	}
	return status
}
