package sqlite

import (
	"database/sql"

	"github.com/loykin/funcprov/internal/store/connector"
)

type Store struct {
	connector.SQLStore
	DSN string
}

// NewStore creates a new SQLite store
func NewStore() *Store {
	return &Store{SQLStore: connector.SQLStore{Dialect: NewDialect()}}
}

// Load accepts either a full "dsn" or a file "path".
func (s *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		s.DSN = dsn
		return nil
	}
	if path, ok := config["path"].(string); ok && path != "" {
		s.DSN = dsnForPath(path)
	}
	return nil
}

// Connect opens the database; an empty DSN selects an in-memory database.
func (s *Store) Connect() (*sql.DB, error) {
	if s.DSN == "" {
		s.DSN = ":memory:"
	}
	db, err := s.Dialect.Connect(s.DSN)
	if err != nil {
		return nil, err
	}
	s.DB = db
	s.Logger().Debug("SQLite database connection established")
	return db, nil
}

// Validate performs basic validation (default implementation)
func (s *Store) Validate() error {
	return nil
}

var _ connector.Connector = (*Store)(nil)
