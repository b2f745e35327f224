package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/loykin/funcprov/internal/common"
	"github.com/loykin/funcprov/internal/constants"
	"github.com/loykin/funcprov/internal/retry"
	"github.com/loykin/funcprov/internal/store/connector"
	"github.com/loykin/funcprov/internal/store/postgresql"
	"github.com/loykin/funcprov/internal/store/sqlite"
	"github.com/loykin/funcprov/internal/util"
)

const (
	DriverSqlite     = "sqlite"
	DriverPostgresql = "postgresql"
)

const (
	StatusSucceeded = connector.StatusSucceeded
	StatusFailed    = connector.StatusFailed
)

type (
	Run            = connector.Run
	ListOptions    = connector.ListOptions
	SqliteConfig   = sqlite.Config
	PostgresConfig = postgresql.Config
)

// ErrNotFound is matched by LastRun when an app has no history.
var ErrNotFound = sql.ErrNoRows

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type DriverConfig interface {
	ToMap() map[string]interface{}
}

// Config selects and configures the history backend.
type Config struct {
	Driver       string
	TableName    string
	DriverConfig DriverConfig
	// Retry applies to connecting and writing; nil selects retry.DefaultRetryConfig.
	Retry *retry.Config
}

var connectors = map[string]func() connector.Connector{
	DriverSqlite:     func() connector.Connector { return sqlite.NewStore() },
	"sqlite3":        func() connector.Connector { return sqlite.NewStore() },
	DriverPostgresql: func() connector.Connector { return postgresql.NewStore() },
	"postgres":       func() connector.Connector { return postgresql.NewStore() },
	"pg":             func() connector.Connector { return postgresql.NewStore() },
}

// Store records provisioning runs.
type Store struct {
	conn   connector.Connector
	tables connector.TableNames
	driver string
	retry  *retry.Config
	logger *common.Logger
}

// Open connects to the configured backend and ensures the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := util.TrimAndLower(cfg.Driver)
	if driver == "" {
		driver = DriverSqlite
	}
	newConn, ok := connectors[driver]
	if !ok {
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	table := util.TrimWithDefault(cfg.TableName, constants.DefaultProvisionRunsTable)
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("store: invalid table name %q", table)
	}

	rc := cfg.Retry
	if rc == nil {
		rc = retry.DefaultRetryConfig()
	}
	rcCopy := *rc
	rcCopy.Component = "store"

	conn := newConn()
	if cfg.DriverConfig != nil {
		if err := conn.Load(cfg.DriverConfig.ToMap()); err != nil {
			return nil, fmt.Errorf("store: load config: %w", err)
		}
	}
	if err := conn.Validate(); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	s := &Store{
		conn:   conn,
		tables: connector.TableNames{ProvisionRuns: table},
		driver: driver,
		retry:  &rcCopy,
		logger: common.GetLogger().WithStore(driver),
	}
	err := retry.WithRetry(ctx, s.retry, func() error {
		_, err := conn.Connect()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := conn.Ensure(s.tables); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	s.logger.Info("history store ready", "table", table)
	return s, nil
}

// Driver returns the normalized driver name.
func (s *Store) Driver() string { return s.driver }

// RecordRun inserts run, retrying transient failures such as a locked database.
func (s *Store) RecordRun(ctx context.Context, run Run) (int64, error) {
	var id int64
	err := retry.WithRetry(ctx, s.retry, func() error {
		var err error
		id, err = s.conn.RecordRun(s.tables, run)
		return err
	})
	return id, err
}

// ListRuns returns recorded runs newest first.
func (s *Store) ListRuns(_ context.Context, opts ListOptions) ([]Run, error) {
	return s.conn.ListRuns(s.tables, opts)
}

// LastRun returns the newest run for app; errors.Is(err, ErrNotFound) when there is none.
func (s *Store) LastRun(_ context.Context, app string) (Run, error) {
	return s.conn.LastRun(s.tables, app)
}

// IsNotFound reports whether err means no matching run.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
