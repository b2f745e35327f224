package funcprov

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const siteID = "/subscriptions/x/resourceGroups/y/providers/Microsoft.Web/sites/myFunc"

func TestParseLink(t *testing.T) {
	l, err := ParseLink("vscode://ms-azuretools.vscode-azurefunctions/?res=" + siteID + "&container=python-3")
	require.NoError(t, err)
	assert.Equal(t, "myFunc", l.AppName())
	assert.Equal(t, "python-3", l.Container)

	_, err = ParseLink("vscode://ms-azuretools.vscode-azurefunctions/?res=" + siteID)
	assert.ErrorIs(t, err, ErrMissingParam)
}

func TestSetupLocalProjectFolder_BadLinkFailsAtParse(t *testing.T) {
	dir := t.TempDir()
	res, err := SetupLocalProjectFolder(context.Background(), "?container=go", dir, "tok")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrMissingParam)
	assert.Equal(t, Step("parse"), FailedStep(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "a", "b.bin")
	res, err := DownloadFile(context.Background(), srv.URL, dst, map[string]string{"X-Test": "1"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Bytes)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	_, err = DownloadFile(context.Background(), srv.URL, dst, nil)
	assert.ErrorIs(t, err, ErrStatus)
}

type fixedMethod struct{ tok string }

func (m fixedMethod) Acquire(context.Context) (string, error) { return m.tok, nil }

func TestRegisterAuthProvider(t *testing.T) {
	RegisterAuthProvider("fixed-test", func(spec map[string]interface{}) (AuthMethod, error) {
		v, _ := spec["value"].(string)
		if v == "" {
			return nil, errors.New("value required")
		}
		return fixedMethod{tok: v}, nil
	})

	tok, err := AcquireToken(context.Background(), "fixed-test", "fixed-test-a", map[string]interface{}{"value": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = AcquireToken(context.Background(), "fixed-test", "fixed-test-b", map[string]interface{}{})
	assert.Error(t, err)
}

func TestOpenSQLiteStore(t *testing.T) {
	ctx := context.Background()
	st, err := OpenSQLiteStore(ctx, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	now := time.Now()
	_, err = st.RecordRun(ctx, Run{RunID: "r1", AppName: "myFunc", Status: "succeeded", StartedAt: now, FinishedAt: now})
	require.NoError(t, err)
	last, err := st.LastRun(ctx, "myFunc")
	require.NoError(t, err)
	assert.Equal(t, "r1", last.RunID)
}
