package connector

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/funcprov/internal/common"
)

const runColumns = "id, run_id, app_name, resource_id, container, project_path, status, step, error, bundle_checksum, started_at, finished_at"

// SQLStore implements the run queries once on top of a Dialect; drivers embed it.
type SQLStore struct {
	DB      *sql.DB
	Dialect Dialect
}

// Logger returns the store logger tagged with the driver name.
func (s *SQLStore) Logger() *common.Logger {
	return common.GetLogger().WithStore(s.Dialect.DriverName())
}

func (s *SQLStore) ready() error {
	if s.DB == nil {
		return errors.New("store: not connected")
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// Ensure creates the history table and its indexes.
func (s *SQLStore) Ensure(th TableNames) error {
	if err := s.ready(); err != nil {
		return err
	}
	logger := s.Logger()
	logger.Debug("ensuring database schema", "table", th.ProvisionRuns)
	for i, q := range s.Dialect.EnsureStatements(th) {
		if _, err := s.DB.Exec(q); err != nil {
			logger.Error("failed to execute schema statement", "error", err, "index", i+1)
			return fmt.Errorf("failed to execute schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// RecordRun inserts run and returns its row id.
func (s *SQLStore) RecordRun(th TableNames, run Run) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	d := s.Dialect
	ph := make([]string, 11)
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	// #nosec G201 -- table name is validated by the store; values are bind parameters
	q := fmt.Sprintf("INSERT INTO %s(run_id, app_name, resource_id, container, project_path, status, step, error, bundle_checksum, started_at, finished_at) VALUES(%s) RETURNING id",
		th.ProvisionRuns, strings.Join(ph, ","))

	var id int64
	err := s.DB.QueryRow(q,
		run.RunID, run.AppName, run.ResourceID, run.Container, run.ProjectPath,
		run.Status, run.Step, run.Error, run.BundleChecksum,
		d.ConvertTimeToStorage(run.StartedAt.UTC()), d.ConvertTimeToStorage(run.FinishedAt.UTC()),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record run %s for %s: %w", run.RunID, run.AppName, err)
	}
	s.Logger().Debug("provision run recorded", "id", id, "run_id", run.RunID, "status", run.Status)
	return id, nil
}

// ListRuns returns runs newest first.
func (s *SQLStore) ListRuns(th TableNames, opts ListOptions) ([]Run, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var where []string
	var args []interface{}
	if opts.AppName != "" {
		args = append(args, opts.AppName)
		where = append(where, "app_name = "+s.Dialect.Placeholder(len(args)))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		where = append(where, "status = "+s.Dialect.Placeholder(len(args)))
	}
	// #nosec G201 -- table name is validated by the store; filters are bind parameters
	q := fmt.Sprintf("SELECT %s FROM %s", runColumns, th.ProvisionRuns)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += " LIMIT " + s.Dialect.Placeholder(len(args))
	}

	rows, err := s.DB.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		r, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the newest run for app, or an error wrapping sql.ErrNoRows.
func (s *SQLStore) LastRun(th TableNames, app string) (Run, error) {
	runs, err := s.ListRuns(th, ListOptions{AppName: app, Limit: 1})
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("no runs for %s: %w", app, sql.ErrNoRows)
	}
	return runs[0], nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) scan(row scanner) (Run, error) {
	var r Run
	var started, finished interface{}
	if err := row.Scan(&r.ID, &r.RunID, &r.AppName, &r.ResourceID, &r.Container, &r.ProjectPath,
		&r.Status, &r.Step, &r.Error, &r.BundleChecksum, &started, &finished); err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	var err error
	if r.StartedAt, err = s.Dialect.ConvertTimeFromStorage(started); err != nil {
		return Run{}, fmt.Errorf("run %d started_at: %w", r.ID, err)
	}
	if r.FinishedAt, err = s.Dialect.ConvertTimeFromStorage(finished); err != nil {
		return Run{}, fmt.Errorf("run %d finished_at: %w", r.ID, err)
	}
	return r, nil
}
