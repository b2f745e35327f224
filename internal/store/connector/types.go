package connector

import (
	"database/sql"
	"time"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one row of the provision_runs table.
type Run struct {
	ID             int64
	RunID          string
	AppName        string
	ResourceID     string
	Container      string
	ProjectPath    string
	Status         string
	Step           string // failing step; empty on success
	Error          string
	BundleChecksum string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Succeeded reports whether the run completed.
func (r Run) Succeeded() bool { return r.Status == StatusSucceeded }

// Duration is FinishedAt - StartedAt, or zero when either is unset.
func (r Run) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// TableNames represents database table names
type TableNames struct {
	ProvisionRuns string
}

// ListOptions filters ListRuns. Zero values mean no filter; Limit <= 0 means no limit.
type ListOptions struct {
	AppName string
	Status  string
	Limit   int
}

// Dialect isolates the SQL differences between drivers.
type Dialect interface {
	// Placeholder returns the bind marker for the 1-based argument index.
	Placeholder(index int) string
	ConvertTimeToStorage(t time.Time) interface{}
	ConvertTimeFromStorage(val interface{}) (time.Time, error)
	Connect(dsn string) (*sql.DB, error)
	EnsureStatements(th TableNames) []string
	DriverName() string
}

// Connector is implemented by each storage driver.
type Connector interface {
	Connect() (*sql.DB, error)
	Validate() error
	Load(config map[string]interface{}) error
	Ensure(th TableNames) error
	RecordRun(th TableNames, run Run) (int64, error)
	// ListRuns returns runs newest first.
	ListRuns(th TableNames, opts ListOptions) ([]Run, error)
	// LastRun returns the newest run for app, or sql.ErrNoRows.
	LastRun(th TableNames, app string) (Run, error)
	Close() error
}
