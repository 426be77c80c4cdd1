package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/render"
	"github.com/hospitaltm/citas-dashboard/internal/export"
	"github.com/hospitaltm/citas-dashboard/internal/notifications"
	"github.com/hospitaltm/citas-dashboard/internal/pages"
	"github.com/hospitaltm/citas-dashboard/internal/session"
	"github.com/hospitaltm/citas-dashboard/internal/snapshot"
	"github.com/hospitaltm/citas-dashboard/pkg/config"
	"github.com/hospitaltm/citas-dashboard/pkg/database"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

const serviceName = "citasctl"

type globals struct {
	backendURL string
	cookies    []string
	locale     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Run appointment dashboards from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.backendURL, "backend", "", "base URL of the hospital API (defaults to CITAS_BACKEND_BASE_URL)")
	root.PersistentFlags().StringArrayVar(&g.cookies, "cookie", nil, "cookie sent to the backend as name=value, repeatable")
	root.PersistentFlags().StringVar(&g.locale, "locale", "", "message language: es or en")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(refreshCmd(g))
	root.AddCommand(notificationsCmd(g))
	root.AddCommand(migrateCmd(g))
	root.AddCommand(pruneCmd(g))
	return root
}

func (g *globals) logger() *logger.Logger {
	if !g.verbose {
		return logger.Nop()
	}
	return logger.NewWithWriter(serviceName, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func (g *globals) config() (*config.Config, error) {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, err
	}
	if g.backendURL != "" {
		cfg.Backend.BaseURL = g.backendURL
	}
	if g.locale != "" {
		cfg.Dashboard.Locale = g.locale
	}
	return cfg, nil
}

func (g *globals) requestCookies() ([]*http.Cookie, error) {
	out := make([]*http.Cookie, 0, len(g.cookies))
	for _, raw := range g.cookies {
		name, value, ok := strings.Cut(raw, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid cookie %q, expected name=value", raw)
		}
		out = append(out, &http.Cookie{Name: name, Value: value})
	}
	return out, nil
}

// manager builds a session manager without persistence or events.
func (g *globals) manager(cfg *config.Config, log *logger.Logger) (*session.Manager, error) {
	variant, err := notifications.VariantByName(cfg.Backend.NotificationAPI)
	if err != nil {
		return nil, err
	}
	return session.NewManager(session.Options{
		Client:     backend.NewClient(&cfg.Backend, log),
		Locale:     cfg.Dashboard.Locale,
		Variant:    variant,
		CSRFCookie: cfg.Backend.CSRFCookie,
		CSRFField:  cfg.Backend.CSRFField,
		Logger:     log,
	}), nil
}

type refreshOutput struct {
	Session string            `json:"session"`
	Page    string            `json:"page"`
	Cycle   uint64            `json:"cycle"`
	Filters map[string]string `json:"filters"`
	Report  render.Report     `json:"report"`
	Alerts  []dom.Alert       `json:"alerts,omitempty"`
	Doc     *dom.Snapshot     `json:"document,omitempty"`
}

func refreshCmd(g *globals) *cobra.Command {
	var (
		filters []string
		output  string
		withDoc bool
	)
	cmd := &cobra.Command{
		Use:   "refresh <page>",
		Short: "Run one refresh cycle of a dashboard and print the result",
		Long: "Opens the dashboard, applies the given filters and runs a refresh.\n" +
			"Filters use the field names of the page, for example fecha_inicio=2025-01-01.\n" +
			"Multi-value filters take a comma separated list.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			log := g.logger()
			cookies, err := g.requestCookies()
			if err != nil {
				return err
			}
			m, err := g.manager(cfg, log)
			if err != nil {
				return err
			}
			defer m.Stop()

			ctx := cmd.Context()
			s, err := m.Open(ctx, session.OpenRequest{Page: args[0], Cookies: cookies})
			if err != nil {
				return err
			}
			ctrl, err := s.Controller()
			if err != nil {
				return err
			}

			for _, f := range filters {
				key, value, ok := strings.Cut(f, "=")
				if !ok {
					return fmt.Errorf("invalid filter %q, expected key=value", f)
				}
				control := key
				for _, field := range ctrl.Page().Reader().Fields {
					if field.Key == key && field.Control != "" {
						control = field.Control
					}
				}
				if err := m.Control(ctx, s, control, strings.Split(value, ",")); err != nil {
					return fmt.Errorf("filter %s: %w", key, err)
				}
			}

			cycle, err := m.Refresh(ctx, s)
			if err != nil {
				return err
			}

			if output != "" {
				data, err := export.Workbook(cycle.Snapshot, s.Localizer())
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return err
				}
			}

			out := refreshOutput{
				Session: s.ID,
				Page:    s.Page,
				Cycle:   cycle.ID,
				Filters: cycle.Filters.Map(),
				Report:  cycle.Report,
				Alerts:  cycle.Snapshot.Alerts,
			}
			if withDoc {
				out.Doc = &cycle.Snapshot
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringArrayVarP(&filters, "filtro", "f", nil, "filter as key=value, repeatable")
	cmd.Flags().StringVarP(&output, "xlsx", "o", "", "also write the rendered page to this workbook")
	cmd.Flags().BoolVar(&withDoc, "documento", false, "include the full document in the output")
	cmd.ValidArgs = []string{pages.Asistencia, pages.Origen, pages.Tendencias, pages.Comparativas}
	return cmd
}

func notificationsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notificaciones",
		Short: "Notification center operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "contador",
		Short: "Print the unread notification count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			cookies, err := g.requestCookies()
			if err != nil {
				return err
			}
			m, err := g.manager(cfg, g.logger())
			if err != nil {
				return err
			}
			defer m.Stop()

			s, err := m.Open(cmd.Context(), session.OpenRequest{Page: pages.Notificaciones, Cookies: cookies})
			if err != nil {
				return err
			}
			c, err := s.Notifications()
			if err != nil {
				return err
			}
			n, err := c.Count(s.Context(cmd.Context()))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"count": n})
		},
	})
	return cmd
}

func migrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the snapshot tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			db, err := database.New(&cfg.Database, g.logger())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func pruneCmd(g *globals) *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete stored snapshots older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			if retention <= 0 {
				retention = cfg.Dashboard.SnapshotRetention
			}
			if retention <= 0 {
				return fmt.Errorf("retention must be positive")
			}
			log := g.logger()
			db, err := database.New(&cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()

			n := snapshot.NewPruner(snapshot.NewRepository(db), retention, 0, log).Prune(cmd.Context())
			return printJSON(cmd, map[string]int64{"deleted": n})
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "age limit, defaults to CITAS_DASHBOARD_SNAPSHOT_RETENTION")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
