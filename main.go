package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harrisonrobin/caltask/pkg/auth"
	"github.com/harrisonrobin/caltask/pkg/config"
	"github.com/harrisonrobin/caltask/pkg/google"
	"github.com/harrisonrobin/caltask/pkg/index"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/oauth2"
)

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	calendar   string
	verbose    bool
	jsonOut    bool
	timeout    time.Duration

	logger *zap.Logger
}

// Overridden in tests to run against a fake Calendar API.
var (
	credential   = auth.TokenSource
	storeOptions []google.Option
)

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "caltask",
		Short: "Kanban tasks stored in a Google Calendar",
		Long: `caltask keeps a personal task list in a dedicated Google Calendar.

Every task is one calendar event. Status, progress and labels travel in the
event's private properties, so the calendar stays readable in any client.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zcfg := zap.NewProductionConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if opts.verbose {
				zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := zcfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/caltask/config.toml)")
	root.PersistentFlags().StringVarP(&opts.calendar, "calendar", "c", "", "Calendar name (overrides config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print results as JSON")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Timeout for calendar requests")

	root.AddCommand(
		newAuthCmd(opts),
		newCalendarCmd(opts),
		newSetCalendarCmd(opts),
		newListCmd(opts),
		newAddCmd(opts),
		newEditCmd(opts),
		newMoveCmd(opts),
		newRmCmd(opts),
		newBoardCmd(opts),
		newWeekCmd(opts),
		newOverdueCmd(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	path := o.configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return nil, "", fmt.Errorf("could not find configuration directory: %w", err)
		}
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// location is the zone due dates are typed and shown in.
func (o *rootOptions) location() (*time.Location, error) {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, err
	}
	return storeCfg.Location()
}

// app is everything a task command needs: the store, its credential and the
// cached calendar id.
type app struct {
	store *google.Store
	cred  oauth2.TokenSource
	index *index.StoreIndex
	name  string
	log   *zap.Logger
}

func (o *rootOptions) newApp(ctx context.Context) (*app, error) {
	cfg, path, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	if o.calendar != "" {
		cfg.Calendar = o.calendar
	}
	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, err
	}

	idx, err := index.New(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar index: %w", err)
	}

	cred, err := credential(ctx, o.logger)
	if err != nil {
		return nil, err
	}

	store := google.NewStore(storeCfg, append([]google.Option{google.WithLogger(o.logger)}, storeOptions...)...)
	return &app{store: store, cred: cred, index: idx, name: storeCfg.StoreName, log: o.logger}, nil
}

// storeID returns the calendar id for the configured name, asking the API
// only when it is not cached yet.
func (a *app) storeID(ctx context.Context) (string, error) {
	if id := a.index.Get(a.name); id != "" {
		return id, nil
	}
	return a.ensure(ctx)
}

func (a *app) ensure(ctx context.Context) (string, error) {
	id, err := a.store.EnsureStore(ctx, a.cred)
	if err != nil {
		return "", err
	}
	a.index.Set(a.name, id)
	if err := a.index.Save(); err != nil {
		a.log.Warn("Could not save calendar index", zap.Error(err))
	}
	return id, nil
}

// withStore runs fn against the calendar. When fn fails with not-found and
// the cached calendar itself is gone, the id is dropped and fn is retried
// once against a fresh lookup.
func (a *app) withStore(ctx context.Context, fn func(storeID string) error) error {
	id, err := a.storeID(ctx)
	if err != nil {
		return err
	}
	err = fn(id)
	if !google.IsNotFound(err) {
		return err
	}
	// The 404 may be about a task; only a missing calendar invalidates the cache.
	exists, checkErr := a.store.StoreExists(ctx, a.cred, id)
	if checkErr != nil || exists {
		return err
	}
	a.index.Remove(a.name)
	fresh, ensureErr := a.ensure(ctx)
	if ensureErr != nil || fresh == id {
		return err
	}
	a.log.Info("Calendar id was stale, retrying", zap.String("old", id), zap.String("new", fresh))
	return fn(fresh)
}

func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	a, err := o.newApp(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, a)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, auth.ErrNoToken) {
			fmt.Fprintln(os.Stderr, "Not authenticated. Run `caltask auth` first.")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
