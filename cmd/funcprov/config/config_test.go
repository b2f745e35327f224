package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/funcprov/internal/common"
	"github.com/loykin/funcprov/internal/constants"
	"github.com/loykin/funcprov/internal/store"
)

const sample = `
logging:
  level: debug
  format: json
client:
  timeout: 90s
  retries: 1
  min_tls_version: "1.2"
auth:
  type: oauth2
  name: arm
  config:
    grant_type: client_credentials
    client_id: id
    client_secret: secret
    tenant_id: contoso.onmicrosoft.com
azure:
  scm_suffix: azurewebsites.us
  resolve_scm_host: true
devcontainer:
  archive_url: https://example.com/templates/main.zip
workspace:
  dir: /tmp/projects
  editor: code-insiders
  open: false
  keep_downloads: true
store:
  type: postgres
  table_name: runs
  postgres:
    host: db
    user: u
    password: p
    dbname: funcprov
server:
  addr: 127.0.0.1:9000
  jwt_secret_from_env: FUNCPROV_TEST_SECRET
  clock_skew: 5s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestConfigDoc_Load(t *testing.T) {
	var c ConfigDoc
	require.NoError(t, c.Load(writeConfig(t, sample)))
	require.NoError(t, c.Validate())

	assert.Equal(t, "debug", c.Logging.Level)
	timeout, err := c.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, timeout)
	assert.Equal(t, 1, c.Retry().MaxRetries)
	assert.NotNil(t, c.HTTP().TLSConfig)

	src := c.TokenSource()
	require.NotNil(t, src)
	assert.Equal(t, "oauth2", src.Type)
	assert.Equal(t, "arm", src.Name)
	assert.Equal(t, "id", src.Config["client_id"])

	assert.Equal(t, "azurewebsites.us", c.Azure.SCMSuffix)
	assert.True(t, c.Azure.ResolveSCMHost)
	assert.Equal(t, "main.zip", c.Devcontainer.ArchiveFileName())
	assert.False(t, c.OpenEditor())
	assert.True(t, c.Workspace.KeepDownloads)

	t.Setenv("FUNCPROV_TEST_SECRET", "s3")
	assert.Equal(t, "s3", c.JWTSecret())
	skew, err := c.ClockSkew()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, skew)

	sc := c.HistoryConfig("/ignored")
	require.NotNil(t, sc)
	assert.Equal(t, "postgres", sc.Driver)
	assert.Equal(t, "runs", sc.TableName)
	assert.Equal(t, "postgres://u:p@db:5432/funcprov?sslmode=disable", sc.DriverConfig.ToMap()["dsn"])
}

func TestConfigDoc_Load_NotRegularFile(t *testing.T) {
	var c ConfigDoc
	assert.Error(t, c.Load(t.TempDir()))
	assert.Error(t, c.Load(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestConfigDoc_Defaults(t *testing.T) {
	var c ConfigDoc
	require.NoError(t, c.Validate())
	timeout, err := c.Timeout()
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultHTTPTimeout, timeout)
	assert.True(t, c.OpenEditor())
	assert.Nil(t, c.TokenSource())
	assert.Empty(t, c.JWTSecret())

	sc := c.HistoryConfig("/data")
	require.NotNil(t, sc)
	assert.Equal(t, store.DriverSqlite, sc.Driver)
	assert.Equal(t, filepath.Join("/data", constants.DefaultDBFileName), sc.DriverConfig.ToMap()["path"])

	c.Store.Disabled = true
	assert.Nil(t, c.HistoryConfig("/data"))
}

func TestConfigDoc_ValidateRejects(t *testing.T) {
	bad := []string{
		"logging:\n  level: loud\n",
		"logging:\n  format: xml\n",
		"client:\n  timeout: soon\n",
		"client:\n  retries: 50\n",
		"client:\n  min_tls_version: \"2.0\"\n",
		"auth:\n  name: x\n",
		"store:\n  type: mysql\n",
		"server:\n  addr: not-an-addr\n",
		"server:\n  clock_skew: x\n",
	}
	for _, body := range bad {
		var c ConfigDoc
		require.NoError(t, c.Load(writeConfig(t, body)), body)
		assert.Error(t, c.Validate(), body)
	}
}

func TestConfigDoc_OpenStore_SQLite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	var c ConfigDoc
	st, err := c.OpenStore(context.Background(), dir)
	require.NoError(t, err)
	require.NotNil(t, st)
	defer func() { _ = st.Close() }()
	assert.Equal(t, store.DriverSqlite, st.Driver())
	_, err = os.Stat(filepath.Join(dir, constants.DefaultDBFileName))
	assert.NoError(t, err)

	c.Store.Disabled = true
	none, err := c.OpenStore(context.Background(), dir)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestConfigDoc_SetupLogging(t *testing.T) {
	prev := common.GetLogger()
	t.Cleanup(func() { common.SetDefaultLogger(prev) })

	no := false
	c := ConfigDoc{Logging: LoggingConfig{Level: "warn", Format: "color", Color: &no}}
	logger, err := c.SetupLogging()
	require.NoError(t, err)
	assert.Equal(t, common.LogLevelWarn, logger.Level())
	assert.Same(t, logger, common.GetLogger())

	c = ConfigDoc{Logging: LoggingConfig{Format: "yaml"}}
	_, err = c.SetupLogging()
	assert.Error(t, err)
}
