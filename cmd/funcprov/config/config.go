package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/loykin/funcprov/internal/auth"
	"github.com/loykin/funcprov/internal/azure"
	"github.com/loykin/funcprov/internal/common"
	"github.com/loykin/funcprov/internal/constants"
	"github.com/loykin/funcprov/internal/devcontainer"
	"github.com/loykin/funcprov/internal/httpc"
	"github.com/loykin/funcprov/internal/retry"
	"github.com/loykin/funcprov/internal/store"
	"github.com/loykin/funcprov/internal/store/postgresql"
	"github.com/loykin/funcprov/internal/util"
)

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=error warn warning info debug"`
	Format        string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json color colour"`
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"`
	Color         *bool  `mapstructure:"color" yaml:"color"`
}

type ClientConfig struct {
	Insecure      bool   `mapstructure:"insecure" yaml:"insecure"`
	MinTLSVersion string `mapstructure:"min_tls_version" yaml:"min_tls_version"`
	MaxTLSVersion string `mapstructure:"max_tls_version" yaml:"max_tls_version"`
	// Timeout is a duration string such as "90s"; it bounds every request including downloads.
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
	// Retries is the number of extra attempts for connection errors and 5xx/429 answers.
	Retries *int `mapstructure:"retries" yaml:"retries" validate:"omitempty,gte=0,lte=10"`
}

type AuthConfig struct {
	// Type is a registered provider key: "oauth2" or "static".
	Type string `mapstructure:"type" yaml:"type" validate:"required"`
	// Name caches the acquired token; defaults to Type.
	Name   string                 `mapstructure:"name" yaml:"name"`
	Config map[string]interface{} `mapstructure:"config" yaml:"config"`
}

type WorkspaceConfig struct {
	// Dir is the default parent folder for provisioned projects.
	Dir        string   `mapstructure:"dir" yaml:"dir"`
	Editor     string   `mapstructure:"editor" yaml:"editor"`
	EditorArgs []string `mapstructure:"editor_args" yaml:"editor_args"`
	Open       *bool    `mapstructure:"open" yaml:"open"`
	// KeepDownloads leaves <app>.zip, the template archive and its extraction next to the project.
	KeepDownloads bool `mapstructure:"keep_downloads" yaml:"keep_downloads"`
}

type SQLiteStoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type StoreConfig struct {
	Disabled  bool              `mapstructure:"disabled" yaml:"disabled"`
	Type      string            `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=sqlite sqlite3 postgresql postgres pg"`
	TableName string            `mapstructure:"table_name" yaml:"table_name"`
	SQLite    SQLiteStoreConfig `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres  postgresql.Config `mapstructure:"postgres" yaml:"postgres"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
	// JWTSecret enables bearer verification on the listener.
	JWTSecret        string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTSecretFromEnv string `mapstructure:"jwt_secret_from_env" yaml:"jwt_secret_from_env"`
	Issuer           string `mapstructure:"issuer" yaml:"issuer"`
	Audience         string `mapstructure:"audience" yaml:"audience"`
	ClockSkew        string `mapstructure:"clock_skew" yaml:"clock_skew"`
}

type ConfigDoc struct {
	Logging      LoggingConfig         `mapstructure:"logging" yaml:"logging"`
	Client       ClientConfig          `mapstructure:"client" yaml:"client"`
	Auth         *AuthConfig           `mapstructure:"auth" yaml:"auth"`
	Azure        azure.Config          `mapstructure:"azure" yaml:"azure"`
	Devcontainer devcontainer.Template `mapstructure:"devcontainer" yaml:"devcontainer"`
	Workspace    WorkspaceConfig       `mapstructure:"workspace" yaml:"workspace"`
	Store        StoreConfig           `mapstructure:"store" yaml:"store"`
	Server       ServerConfig          `mapstructure:"server" yaml:"server"`
}

func (c *ConfigDoc) Load(path string) error {
	clean := filepath.Clean(path)
	if info, statErr := os.Stat(clean); statErr != nil || !info.Mode().IsRegular() {
		if statErr != nil {
			return statErr
		}
		return fmt.Errorf("not a regular file: %s", clean)
	}
	// #nosec G304 -- config path is provided intentionally by the user
	f, err := os.Open(clean)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("parse %s: %w", clean, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field formats that the YAML decoder cannot.
func (c *ConfigDoc) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Timeout(); err != nil {
		return fmt.Errorf("invalid config: client.timeout: %w", err)
	}
	if _, err := c.ClockSkew(); err != nil {
		return fmt.Errorf("invalid config: server.clock_skew: %w", err)
	}
	for _, v := range []string{c.Client.MinTLSVersion, c.Client.MaxTLSVersion} {
		if strings.TrimSpace(v) != "" && httpc.ParseTLSVersion(v) == 0 {
			return fmt.Errorf("invalid config: unknown tls version %q", v)
		}
	}
	return nil
}

// Timeout is the parsed client timeout, constants.DefaultHTTPTimeout when unset.
func (c *ConfigDoc) Timeout() (time.Duration, error) {
	s, ok := util.TrimEmptyCheck(c.Client.Timeout)
	if !ok {
		return constants.DefaultHTTPTimeout, nil
	}
	return time.ParseDuration(s)
}

func (c *ConfigDoc) ClockSkew() (time.Duration, error) {
	s, ok := util.TrimEmptyCheck(c.Server.ClockSkew)
	if !ok {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// HTTP builds the shared client factory.
func (c *ConfigDoc) HTTP() *httpc.Httpc {
	timeout, _ := c.Timeout()
	return &httpc.Httpc{
		TLSConfig: httpc.TLSConfig(c.Client.MinTLSVersion, c.Client.MaxTLSVersion, c.Client.Insecure),
		Timeout:   timeout,
	}
}

// Retry is the download retry policy.
func (c *ConfigDoc) Retry() *retry.Config {
	rc := retry.DefaultRetryConfig()
	if c.Client.Retries != nil {
		rc.MaxRetries = *c.Client.Retries
	}
	return rc
}

// TokenSource returns the configured credential source or nil.
func (c *ConfigDoc) TokenSource() *auth.Auth {
	if c.Auth == nil {
		return nil
	}
	return &auth.Auth{Type: c.Auth.Type, Name: c.Auth.Name, Config: c.Auth.Config}
}

// OpenEditor reports whether provisioned projects are opened; default true.
func (c *ConfigDoc) OpenEditor() bool {
	return c.Workspace.Open == nil || *c.Workspace.Open
}

// JWTSecret resolves the listener secret from the value or the named environment variable.
func (c *ConfigDoc) JWTSecret() string {
	if s, ok := util.TrimEmptyCheck(c.Server.JWTSecret); ok {
		return s
	}
	if name, ok := util.TrimEmptyCheck(c.Server.JWTSecretFromEnv); ok {
		return strings.TrimSpace(os.Getenv(name))
	}
	return ""
}

// HistoryConfig maps the store section; nil when history is disabled. baseDir hosts the default
// SQLite file.
func (c *ConfigDoc) HistoryConfig(baseDir string) *store.Config {
	if c.Store.Disabled {
		return nil
	}
	driver := util.TrimWithDefault(util.TrimAndLower(c.Store.Type), store.DriverSqlite)
	cfg := &store.Config{Driver: driver, TableName: strings.TrimSpace(c.Store.TableName)}
	switch driver {
	case store.DriverPostgresql, "postgres", "pg":
		pg := c.Store.Postgres
		cfg.DriverConfig = &pg
	default:
		path := util.TrimWithDefault(c.Store.SQLite.Path, filepath.Join(baseDir, constants.DefaultDBFileName))
		cfg.DriverConfig = &store.SqliteConfig{Path: path}
	}
	return cfg
}

// OpenStore opens the history store, or returns nil when disabled.
func (c *ConfigDoc) OpenStore(ctx context.Context, baseDir string) (*store.Store, error) {
	cfg := c.HistoryConfig(baseDir)
	if cfg == nil {
		return nil, nil
	}
	if sc, ok := cfg.DriverConfig.(*store.SqliteConfig); ok {
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return store.Open(ctx, *cfg)
}

func (c *ConfigDoc) parseLogLevel() (common.LogLevel, error) {
	return common.ParseLogLevel(util.TrimWithDefault(util.TrimAndLower(c.Logging.Level), "info"))
}

// SetupLogging configures the global logger based on config settings
func (c *ConfigDoc) SetupLogging() (*common.Logger, error) {
	level, err := c.parseLogLevel()
	if err != nil {
		return nil, err
	}

	format, err := common.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	if c.Logging.Color != nil {
		switch {
		case *c.Logging.Color && format == common.FormatText:
			format = common.FormatColor
		case !*c.Logging.Color && format == common.FormatColor:
			format = common.FormatText
		}
	}
	logger := common.NewLoggerTo(os.Stderr, level, format)

	maskingEnabled := true
	if c.Logging.MaskSensitive != nil {
		maskingEnabled = *c.Logging.MaskSensitive
	}
	logger.EnableMasking(maskingEnabled)
	common.SetDefaultLogger(logger)

	logger.Debug("logging configured",
		"level", level.String(),
		"format", string(format),
		"mask_sensitive", maskingEnabled)
	return logger, nil
}
