package archive

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name string
	body string
}

func writeZip(t *testing.T, fs afero.Fs, p string, entries ...entry) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		if e.body != "" {
			_, err = w.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, p, buf.Bytes(), 0o644))
}

func TestExtract_RoundTripsEveryFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	entries := []entry{
		{"host.json", `{"version":"2.0"}`},
		{"local.settings.json", `{"IsEncrypted":false}`},
		{"HttpTrigger/", ""},
		{"HttpTrigger/function.json", `{"bindings":[]}`},
		{"HttpTrigger/index.js", "module.exports = async () => {}"},
	}
	writeZip(t, fs, "/w/myFunc.zip", entries...)

	files, err := Extract(fs, "/w/myFunc.zip", "/w/myFunc")
	require.NoError(t, err)
	assert.Equal(t, []string{"HttpTrigger/function.json", "HttpTrigger/index.js", "host.json", "local.settings.json"}, files)

	for _, e := range entries {
		if e.body == "" {
			continue
		}
		got, err := afero.ReadFile(fs, filepath.Join("/w/myFunc", filepath.FromSlash(e.name)))
		require.NoError(t, err)
		assert.Equal(t, e.body, string(got), e.name)
	}
}

func TestExtract_OverwritesExistingFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/w/out/host.json", []byte("a much longer previous body"), 0o644))
	writeZip(t, fs, "/w/a.zip", entry{"host.json", "new"})

	_, err := Extract(fs, "/w/a.zip", "/w/out")
	require.NoError(t, err)
	got, _ := afero.ReadFile(fs, "/w/out/host.json")
	assert.Equal(t, "new", string(got))
}

func TestExtract_RejectsTraversal(t *testing.T) {
	for _, name := range []string{"../evil.txt", "a/../../evil.txt", "/etc/passwd", `..\evil.txt`, "C:/x.txt"} {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeZip(t, fs, "/w/bad.zip", entry{name, "x"})
			_, err := Extract(fs, "/w/bad.zip", "/w/out")
			require.Error(t, err)
			exists, _ := afero.Exists(fs, "/w/evil.txt")
			assert.False(t, exists)
		})
	}
}

func TestSafeRel(t *testing.T) {
	for _, bad := range []string{"../x", "a/../../x", "/abs", `..\x`, "C:/x"} {
		_, err := safeRel(bad)
		assert.True(t, errors.Is(err, ErrUnsafePath), bad)
	}
	got, err := safeRel("a/./b//c")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", got)
}

func TestExtract_NotAZip(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/w/x.zip", []byte("<html>login page</html>"), 0o644))
	_, err := Extract(fs, "/w/x.zip", "/w/out")
	assert.Error(t, err)
}

func TestTopLevelDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeZip(t, fs, "/w/master.zip",
		entry{"vscode-dev-containers-master/", ""},
		entry{"vscode-dev-containers-master/containers/go/.devcontainer/devcontainer.json", "{}"},
		entry{"vscode-dev-containers-master/README.md", "#"},
	)
	top, err := TopLevelDir(fs, "/w/master.zip")
	require.NoError(t, err)
	assert.Equal(t, "vscode-dev-containers-master", top)

	writeZip(t, fs, "/w/flat.zip", entry{"host.json", "{}"}, entry{"fn/index.js", ""})
	top, err = TopLevelDir(fs, "/w/flat.zip")
	require.NoError(t, err)
	assert.Equal(t, "", top)

	writeZip(t, fs, "/w/two.zip", entry{"a/x", "1"}, entry{"b/y", "2"})
	top, err = TopLevelDir(fs, "/w/two.zip")
	require.NoError(t, err)
	assert.Equal(t, "", top)
}

func TestList(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeZip(t, fs, "/w/a.zip", entry{"one", "1"}, entry{"dir/two", "2"})
	names, err := List(fs, "/w/a.zip")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "dir/two"}, names)
}
