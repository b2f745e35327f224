package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// ErrUnsafePath is returned for entries that would be written outside the destination.
var ErrUnsafePath = errors.New("archive: entry escapes destination directory")

// maxEntrySize guards against decompression bombs; Kudu bundles and template archives are far smaller.
const maxEntrySize = 1 << 30

type zipFile struct {
	f      afero.File
	reader *zip.Reader
}

func open(fs afero.Fs, archivePath string) (*zipFile, error) {
	f, err := fs.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", archivePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("archive: stat %s: %w", archivePath, err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("archive: read %s: %w", archivePath, err)
	}
	return &zipFile{f: f, reader: zr}, nil
}

func (z *zipFile) Close() error { return z.f.Close() }

// Extract unpacks archivePath into destDir and returns the extracted file paths, relative to
// destDir with forward slashes, sorted. destDir is created when missing; existing files are
// overwritten.
func Extract(fs afero.Fs, archivePath, destDir string) ([]string, error) {
	z, err := open(fs, archivePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = z.Close() }()

	if err := fs.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", destDir, err)
	}

	var files []string
	for _, entry := range z.reader.File {
		rel, err := safeRel(entry.Name)
		if err != nil {
			return files, err
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(destDir, filepath.FromSlash(rel))

		if entry.FileInfo().IsDir() {
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return files, fmt.Errorf("archive: create %s: %w", target, err)
			}
			continue
		}
		if entry.Mode()&os.ModeSymlink != 0 {
			// symlinks could point anywhere; template archives do not need them
			continue
		}
		if err := writeEntry(fs, entry, target); err != nil {
			return files, err
		}
		files = append(files, rel)
	}
	sort.Strings(files)
	return files, nil
}

func writeEntry(fs afero.Fs, entry *zip.File, target string) error {
	if entry.UncompressedSize64 > maxEntrySize {
		return fmt.Errorf("archive: entry %s is too large (%d bytes)", entry.Name, entry.UncompressedSize64)
	}
	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("archive: create %s: %w", filepath.Dir(target), err)
	}
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("archive: open entry %s: %w", entry.Name, err)
	}
	defer func() { _ = rc.Close() }()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0o200)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", target, err)
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxEntrySize)); err != nil {
		_ = out.Close()
		return fmt.Errorf("archive: write %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", target, err)
	}
	return nil
}

// safeRel normalizes an entry name and rejects absolute paths and parent traversal.
func safeRel(name string) (string, error) {
	n := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(n, "/") || (len(n) > 1 && n[1] == ':') {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	clean := path.Clean(n)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return clean, nil
}

// List returns the entry names of an archive in archive order.
func List(fs afero.Fs, archivePath string) ([]string, error) {
	z, err := open(fs, archivePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = z.Close() }()

	names := make([]string, 0, len(z.reader.File))
	for _, entry := range z.reader.File {
		names = append(names, entry.Name)
	}
	return names, nil
}

// TopLevelDir returns the single directory every entry lives under, as GitHub archives have
// ("vscode-dev-containers-master/"). It returns "" when entries sit at the root or under
// several directories.
func TopLevelDir(fs afero.Fs, archivePath string) (string, error) {
	names, err := List(fs, archivePath)
	if err != nil {
		return "", err
	}
	top := ""
	for _, name := range names {
		rel, err := safeRel(name)
		if err != nil {
			return "", err
		}
		if rel == "" {
			continue
		}
		first, _, hasRest := strings.Cut(rel, "/")
		if !hasRest && !strings.HasSuffix(name, "/") {
			return "", nil
		}
		if top == "" {
			top = first
		} else if top != first {
			return "", nil
		}
	}
	return top, nil
}
