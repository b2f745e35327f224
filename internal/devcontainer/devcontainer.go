package devcontainer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/loykin/funcprov/internal/archive"
)

const (
	DefaultArchiveURL     = "https://github.com/microsoft/vscode-dev-containers/archive/master.zip"
	DefaultContainersPath = "containers"
	// DirName is the folder the editor looks for in a project root.
	DirName = ".devcontainer"
)

// ErrTemplateNotFound is returned when the archive has no <containers>/<name>/.devcontainer.
var ErrTemplateNotFound = errors.New("devcontainer: template not found")

// Template describes where dev-container definitions come from.
type Template struct {
	ArchiveURL     string `mapstructure:"archive_url" yaml:"archive_url"`
	ContainersPath string `mapstructure:"containers_path" yaml:"containers_path"`
}

// WithDefaults fills empty fields.
func (t Template) WithDefaults() Template {
	if strings.TrimSpace(t.ArchiveURL) == "" {
		t.ArchiveURL = DefaultArchiveURL
	}
	if strings.Trim(strings.TrimSpace(t.ContainersPath), "/") == "" {
		t.ContainersPath = DefaultContainersPath
	}
	t.ContainersPath = strings.Trim(t.ContainersPath, "/")
	return t
}

// ArchiveFileName is the local file name of the downloaded archive, e.g. "master.zip".
func (t Template) ArchiveFileName() string {
	base := path.Base(strings.SplitN(t.WithDefaults().ArchiveURL, "?", 2)[0])
	if base == "" || base == "." || base == "/" {
		return "templates.zip"
	}
	return base
}

// containersDir finds <root>/<containers> or, for archives with a single top folder,
// <root>/<top>/<containers>.
func (t Template) containersDir(fs afero.Fs, extractedRoot string) (string, error) {
	t = t.WithDefaults()
	rel := filepath.FromSlash(t.ContainersPath)
	direct := filepath.Join(extractedRoot, rel)
	if ok, _ := afero.DirExists(fs, direct); ok {
		return direct, nil
	}
	entries, err := afero.ReadDir(fs, extractedRoot)
	if err != nil {
		return "", fmt.Errorf("devcontainer: read %s: %w", extractedRoot, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(extractedRoot, e.Name(), rel)
		if ok, _ := afero.DirExists(fs, candidate); ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no %s folder under %s", ErrTemplateNotFound, t.ContainersPath, extractedRoot)
}

// Locate returns the .devcontainer folder of template name inside an extracted archive.
func (t Template) Locate(fs afero.Fs, extractedRoot, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid name %q", ErrTemplateNotFound, name)
	}
	dir, err := t.containersDir(fs, extractedRoot)
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, name, DirName)
	if ok, _ := afero.DirExists(fs, p); !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return p, nil
}

// Names lists templates in an extracted archive that carry a .devcontainer folder, sorted.
func (t Template) Names(fs afero.Fs, extractedRoot string) ([]string, error) {
	dir, err := t.containersDir(fs, extractedRoot)
	if err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("devcontainer: read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if ok, _ := afero.DirExists(fs, filepath.Join(dir, e.Name(), DirName)); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// NamesFromArchive lists templates directly from the zip index without extracting it.
func (t Template) NamesFromArchive(fs afero.Fs, archivePath string) ([]string, error) {
	t = t.WithDefaults()
	entries, err := archive.List(fs, archivePath)
	if err != nil {
		return nil, err
	}
	top, err := archive.TopLevelDir(fs, archivePath)
	if err != nil {
		return nil, err
	}
	prefix := t.ContainersPath + "/"
	if top != "" {
		prefix = top + "/" + prefix
	}
	seen := map[string]bool{}
	for _, e := range entries {
		rest, ok := strings.CutPrefix(strings.ReplaceAll(e, "\\", "/"), prefix)
		if !ok {
			continue
		}
		name, sub, _ := strings.Cut(rest, "/")
		if name != "" && (sub == DirName || strings.HasPrefix(sub, DirName+"/")) {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// CopyDir replaces dst with a recursive copy of src.
func CopyDir(fs afero.Fs, src, dst string) error {
	info, err := fs.Stat(src)
	if err != nil {
		return fmt.Errorf("devcontainer: stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("devcontainer: %s is not a directory", src)
	}
	if err := fs.RemoveAll(dst); err != nil {
		return fmt.Errorf("devcontainer: remove %s: %w", dst, err)
	}
	return afero.Walk(fs, src, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return fs.MkdirAll(target, fi.Mode().Perm()|0o700)
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		return copyFile(fs, p, target, fi.Mode().Perm())
	})
}

func copyFile(fs afero.Fs, src, dst string, mode os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("devcontainer: open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()
	if mode == 0 {
		mode = 0o644
	}
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("devcontainer: create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("devcontainer: copy %s: %w", src, err)
	}
	return out.Close()
}
