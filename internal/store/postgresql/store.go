package postgresql

import (
	"database/sql"
	"errors"

	"github.com/loykin/funcprov/internal/store/connector"
)

type Store struct {
	connector.SQLStore
	DSN string
}

// NewStore creates a new PostgreSQL store
func NewStore() *Store {
	return &Store{SQLStore: connector.SQLStore{Dialect: NewDialect()}}
}

// Load reads "dsn" from the config map produced by Config.ToMap.
func (p *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		p.DSN = dsn
	}
	return nil
}

// Validate requires a DSN.
func (p *Store) Validate() error {
	if p.DSN == "" {
		return errors.New("postgresql: dsn or host is required")
	}
	return nil
}

func (p *Store) Connect() (*sql.DB, error) {
	db, err := p.Dialect.Connect(p.DSN)
	if err != nil {
		return nil, err
	}
	p.DB = db
	p.Logger().Debug("PostgreSQL database connection established")
	return db, nil
}

var _ connector.Connector = (*Store)(nil)
