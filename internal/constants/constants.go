package constants

import "time"

// Database constants
const (
	// PostgreSQL defaults
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	// Connection pool settings
	DefaultPostgresMaxConnections = 25
	DefaultPostgresMaxIdleConns   = 5
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1

	// SQLite pragmas
	DefaultSQLiteBusyTimeoutMS = 5000

	// DefaultProvisionRunsTable holds one row per provisioning run.
	DefaultProvisionRunsTable = "provision_runs"
	// DefaultDBFileName is the SQLite history file created in the config directory.
	DefaultDBFileName = "funcprov.db"
)

// Connection pool lifetimes
const (
	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute
)

// HTTP and provisioning defaults
const (
	DefaultHTTPTimeout    = 5 * time.Minute
	DefaultListenAddr     = "127.0.0.1:7177"
	DefaultProvisionLimit = 20
	// WorkDirPrefix names the hidden per-run folder holding downloads, the template tree and the
	// staged project.
	WorkDirPrefix = ".funcprov-"
	// PreviousSuffix marks an existing project set aside while the new one is moved in.
	PreviousSuffix = ".funcprov-previous"
)
