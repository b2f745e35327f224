package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/afero"

	"github.com/loykin/funcprov/internal/common"
	"github.com/loykin/funcprov/internal/httpc"
	"github.com/loykin/funcprov/internal/retry"
)

var (
	// ErrStatus is matched by every *StatusError.
	ErrStatus = errors.New("download: unexpected response status")
	// ErrNoBody means the server answered without a readable body.
	ErrNoBody = errors.New("download: response has no body")
)

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download: GET %s returned %s", e.URL, e.Status)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Temporary reports whether the status is worth retrying (5xx and 429).
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// Request describes a single file download.
type Request struct {
	URL     string
	Path    string
	Headers map[string]string
}

// Result describes the file that was written.
type Result struct {
	Path       string
	Bytes      int64
	Checksum   string // xxhash64, hex
	StatusCode int
}

// Options configures a Downloader. Zero values select defaults.
type Options struct {
	HTTP   *httpc.Httpc
	Fs     afero.Fs
	Retry  *retry.Config
	Logger *common.Logger
}

// Downloader streams HTTP responses to files.
type Downloader struct {
	client *resty.Client
	fs     afero.Fs
	retry  *retry.Config
	logger *common.Logger
}

// New creates a Downloader.
func New(opts Options) *Downloader {
	h := opts.HTTP
	if h == nil {
		h = &httpc.Httpc{}
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	rc := opts.Retry
	if rc == nil {
		rc = retry.DefaultRetryConfig()
	}
	// status errors carry their own retry decision
	cfg := *rc
	cfg.Component = "download"
	cfg.Retryable = func(err error) bool {
		var se *StatusError
		return errors.As(err, &se) && se.Temporary()
	}
	logger := opts.Logger
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Downloader{
		client: h.New(),
		fs:     fs,
		retry:  &cfg,
		logger: logger.WithComponent("download"),
	}
}

// DownloadFile fetches url and writes the body to destinationPath, creating parent directories.
// An existing file is replaced only once the new body has been fully written.
func (d *Downloader) DownloadFile(ctx context.Context, rawURL, destinationPath string, headers map[string]string) (*Result, error) {
	return d.Fetch(ctx, Request{URL: rawURL, Path: destinationPath, Headers: headers})
}

// Fetch is DownloadFile taking a Request.
func (d *Downloader) Fetch(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	dir := filepath.Dir(req.Path)
	if err := d.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("download: create directory %s: %w", dir, err)
	}

	logger := d.logger.WithRequest(http.MethodGet, req.URL)
	logger.Debug("starting download", "path", req.Path)

	var res *Result
	err := retry.WithRetry(ctx, d.retry, func() error {
		r, err := d.once(ctx, req)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		logger.Error("download failed", "error", err)
		return nil, err
	}
	logger.Info("download complete", "path", res.Path, "bytes", res.Bytes, "checksum", res.Checksum)
	return res, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.Path) == "" {
		return errors.New("download: destination path is required")
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return fmt.Errorf("download: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("download: unsupported url scheme %q", u.Scheme)
	}
	return nil
}

func (d *Downloader) once(ctx context.Context, req Request) (*Result, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetDoNotParseResponse(true).
		Get(req.URL)
	if err != nil {
		return nil, fmt.Errorf("download: GET %s: %w", req.URL, err)
	}
	body := resp.RawBody()
	if body == nil {
		return nil, retry.Permanent(ErrNoBody)
	}
	defer func() { _ = body.Close() }()

	if !resp.IsSuccess() {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, body, 4<<10)
		se := &StatusError{URL: req.URL, StatusCode: resp.StatusCode(), Status: resp.Status()}
		if se.Status == "" {
			se.Status = strconv.Itoa(se.StatusCode)
		}
		if se.Temporary() {
			return nil, se
		}
		return nil, retry.Permanent(se)
	}

	n, sum, err := d.writeAtomic(req.Path, body)
	if err != nil {
		return nil, err
	}
	return &Result{Path: req.Path, Bytes: n, Checksum: sum, StatusCode: resp.StatusCode()}, nil
}

// writeAtomic streams r into a sibling temp file and renames it over path.
func (d *Downloader) writeAtomic(path string, r io.Reader) (int64, string, error) {
	dir, base := filepath.Split(path)
	tmp, err := afero.TempFile(d.fs, dir, "."+base+".*.part")
	if err != nil {
		return 0, "", fmt.Errorf("download: create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = d.fs.Remove(tmpName) }

	h := xxhash.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return 0, "", fmt.Errorf("download: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		_ = tmp.Close()
		cleanup()
		return 0, "", fmt.Errorf("download: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, "", fmt.Errorf("download: close %s: %w", path, err)
	}
	if err := d.fs.Rename(tmpName, path); err != nil {
		cleanup()
		return 0, "", fmt.Errorf("download: move into place %s: %w", path, err)
	}
	return n, strconv.FormatUint(h.Sum64(), 16), nil
}
