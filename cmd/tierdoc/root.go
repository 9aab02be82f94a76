package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guyvdb/tierdoc/config"
	"github.com/guyvdb/tierdoc/database"
	"github.com/guyvdb/tierdoc/store"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	registry *prometheus.Registry
	metrics  *store.Metrics
}

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		cfg:    config.NewConfig(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	rc := &cobra.Command{
		Use:   "tierdoc",
		Short: "tierdoc stores documents across an attribute store and a blob store.",
		Long: `tierdoc stores documents made of named, typed items. Small values are kept
as attributes of the document record; large text, XML and JSON values are kept
as objects in a blob store and loaded on first access.

The bolt backend keeps both stores in a single local file. The aws backend
uses SimpleDB and S3.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(viper.New(), cmd.Flags()); err != nil {
				return err
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			logger, err := a.cfg.NewLogger(a.stderr)
			if err != nil {
				return err
			}
			a.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")
	config.Flags(rc.PersistentFlags(), a.cfg)

	rc.AddCommand(newInitCommand(a))
	rc.AddCommand(newDropCommand(a))
	rc.AddCommand(newPutCommand(a))
	rc.AddCommand(newGetCommand(a))
	rc.AddCommand(newRmCommand(a))
	rc.AddCommand(newLsCommand(a))
	rc.AddCommand(newSearchCommand(a))
	rc.AddCommand(newObjectsCommand(a))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// stores opens the configured backend. The returned function releases it.
func (a *app) stores() (store.AttributeStore, store.BlobStore, func() error, error) {
	var (
		attrs store.AttributeStore
		blobs store.BlobStore
		done  = func() error { return nil }
	)
	switch a.cfg.Backend {
	case config.BackendBolt:
		bs, err := store.NewBoltStore(a.cfg.Bolt.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		attrs, blobs, done = bs, bs, bs.Close
	case config.BackendAWS:
		sess, err := store.NewAWSSession(a.cfg.AWS)
		if err != nil {
			return nil, nil, nil, err
		}
		attrs, blobs = store.NewAWSStores(sess)
	default:
		return nil, nil, nil, fmt.Errorf("unknown backend %q", a.cfg.Backend)
	}

	if a.cfg.Metrics {
		a.registry = prometheus.NewRegistry()
		a.metrics = store.NewMetrics("tierdoc")
		if err := a.metrics.Register(a.registry); err != nil {
			return nil, nil, nil, err
		}
		attrs = store.InstrumentAttributeStore(attrs, a.metrics)
		blobs = store.InstrumentBlobStore(blobs, a.metrics)
	}
	return attrs, blobs, done, nil
}

func (a *app) newDatabase(attrs store.AttributeStore, blobs store.BlobStore) *database.Database {
	return database.New(attrs, blobs,
		database.WithLogger(a.logger),
		database.WithPropagation(a.cfg.Propagation.Timeout, a.cfg.Propagation.Interval))
}

// withDatabase opens the configured database, runs fn and releases the
// stores.
func (a *app) withDatabase(ctx context.Context, fn func(*database.Database) error) (err error) {
	if a.cfg.Database == "" {
		return errors.New("no database given, use --database")
	}
	attrs, blobs, done, err := a.stores()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := done(); err == nil {
			err = cerr
		}
		a.reportMetrics()
	}()

	db := a.newDatabase(attrs, blobs)
	defer db.Close()
	if err := db.Open(ctx, a.cfg.Database); err != nil {
		return err
	}
	return fn(db)
}

// reportMetrics prints the store call counters gathered during the command.
func (a *app) reportMetrics() {
	if a.registry == nil {
		return
	}
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Error("cannot gather metrics", "err", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			fmt.Fprintf(a.stderr, "%s%s %v\n", mf.GetName(), labels, m.GetCounter().GetValue())
		}
	}
}
