package provision

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/funcprov/internal/archive"
	"github.com/loykin/funcprov/internal/auth"
	"github.com/loykin/funcprov/internal/azure"
	"github.com/loykin/funcprov/internal/common"
	"github.com/loykin/funcprov/internal/constants"
	"github.com/loykin/funcprov/internal/deeplink"
	"github.com/loykin/funcprov/internal/devcontainer"
	"github.com/loykin/funcprov/internal/download"
	"github.com/loykin/funcprov/internal/store"
	"github.com/loykin/funcprov/internal/workspace"
)

var (
	// ErrNoToken means neither the request nor the configured source supplied a bearer token.
	ErrNoToken = errors.New("provision: bearer token is required")
	// ErrNoFolder means no target folder was given and no default is configured.
	ErrNoFolder = errors.New("provision: target folder is required")
)

// Endpoints resolves where an app's content bundle is downloaded from.
type Endpoints interface {
	BundleURL(ctx context.Context, rid deeplink.ResourceID, token string) (string, error)
}

// Fetcher downloads a single file.
type Fetcher interface {
	Fetch(ctx context.Context, req download.Request) (*download.Result, error)
}

// TokenSource supplies a bearer token when the request carries none. *auth.Auth implements it.
type TokenSource interface {
	Acquire(ctx context.Context) (string, error)
}

// History records finished runs. *store.Store implements it.
type History interface {
	RecordRun(ctx context.Context, run store.Run) (int64, error)
}

// Request is one provisioning trigger.
type Request struct {
	Link deeplink.Link
	// Folder is the parent of the project folder; empty falls back to Link.Folder, then the default.
	Folder string
	// Token is the bearer token for the SCM endpoint; empty asks the TokenSource.
	Token string
}

// Result describes a materialized project.
type Result struct {
	RunID       string
	AppName     string
	ProjectPath string
	// Files are the bundle files relative to ProjectPath, forward slashes, sorted.
	Files            []string
	DevcontainerPath string
	// DownloadDir holds the archives and the extracted template tree when they are kept.
	DownloadDir      string
	BundleChecksum   string
	TemplateChecksum string
	Duration         time.Duration
}

// Options wires a Provisioner. Nil collaborators get defaults except History and Tokens.
type Options struct {
	Fs            afero.Fs
	Downloader    Fetcher
	Endpoints     Endpoints
	Template      devcontainer.Template
	Opener        workspace.Opener
	History       History
	Tokens        TokenSource
	DefaultFolder string
	// KeepDownloads leaves the run's download folder (archives and template tree) in place.
	KeepDownloads bool
	Logger        *common.Logger
	Now           func() time.Time
}

// Provisioner materializes function app projects with a dev-container definition.
type Provisioner struct {
	fs            afero.Fs
	downloader    Fetcher
	endpoints     Endpoints
	template      devcontainer.Template
	opener        workspace.Opener
	history       History
	tokens        TokenSource
	defaultFolder string
	keepDownloads bool
	logger        *common.Logger
	now           func() time.Time
	locks         *pathLocks
}

// New creates a Provisioner.
func New(opts Options) *Provisioner {
	logger := opts.Logger
	if logger == nil {
		logger = common.GetLogger()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	p := &Provisioner{
		fs:            fs,
		downloader:    opts.Downloader,
		endpoints:     opts.Endpoints,
		template:      opts.Template.WithDefaults(),
		opener:        opts.Opener,
		history:       opts.History,
		tokens:        opts.Tokens,
		defaultFolder: opts.DefaultFolder,
		keepDownloads: opts.KeepDownloads,
		logger:        logger.WithComponent("provision"),
		now:           opts.Now,
		locks:         newPathLocks(),
	}
	if p.downloader == nil {
		p.downloader = download.New(download.Options{Fs: fs, Logger: logger})
	}
	if p.endpoints == nil {
		p.endpoints = azure.NewResolver(azure.Config{}, nil, logger)
	}
	if p.opener == nil {
		p.opener = workspace.EditorOpener{Logger: logger}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// SetupLocalProjectFolder parses uri and provisions it under folder.
func (p *Provisioner) SetupLocalProjectFolder(ctx context.Context, uri, folder, token string) (*Result, error) {
	link, err := deeplink.Parse(uri)
	if err != nil {
		p.logger.WithStep(string(StepParse)).Error("invalid deep link", "error", err)
		return nil, &StepError{Step: StepParse, Err: err}
	}
	return p.Run(ctx, Request{Link: link, Folder: folder, Token: token})
}

// Run provisions req.Link. Runs targeting the same folder through this Provisioner are
// serialized. Runs from separate Provisioners or processes (for example a CLI invocation next to
// a running listener) are not coordinated: racing them against one project folder is unsupported
// and may fail at the finalize step. On failure everything this run wrote is removed
// and an existing project folder is left as it was. A failure to open the editor is reported
// together with the Result since the project is already in place.
func (p *Provisioner) Run(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.NewString()
	started := p.now()
	logger := p.logger.WithRun(runID).WithApp(req.Link.AppName())
	logger.Info("provisioning started", "resource_id", req.Link.ResourceID.String(), "container", req.Link.Container)

	res, err := p.run(ctx, runID, req, logger)

	finished := p.now()
	rec := store.Run{
		RunID:      runID,
		AppName:    req.Link.AppName(),
		ResourceID: req.Link.ResourceID.String(),
		Container:  req.Link.Container,
		Status:     store.StatusSucceeded,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if res != nil {
		res.Duration = finished.Sub(started)
		rec.ProjectPath = res.ProjectPath
		rec.BundleChecksum = res.BundleChecksum
	}
	if err != nil {
		rec.Status = store.StatusFailed
		rec.Step = string(FailedStep(err))
		rec.Error = err.Error()
		logger.Error("provisioning failed", "step", rec.Step, "error", err)
	} else {
		logger.Info("provisioning complete", "path", res.ProjectPath, "files", len(res.Files), "duration", res.Duration)
	}
	p.record(ctx, rec, logger)
	return res, err
}

func (p *Provisioner) record(ctx context.Context, rec store.Run, logger *common.Logger) {
	if p.history == nil || rec.AppName == "" {
		return
	}
	// the run's own context may already be cancelled
	if _, err := p.history.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("failed to record provisioning run", "error", err)
	}
}

func (p *Provisioner) run(ctx context.Context, runID string, req Request, logger *common.Logger) (*Result, error) {
	link := req.Link
	var (
		folder string
		token  string
	)
	if err := step(logger, StepParse, func() error {
		if err := link.Validate(); err != nil {
			return err
		}
		folder = p.folder(req)
		if folder == "" {
			return ErrNoFolder
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if err := step(logger, StepAuth, func() error {
		var err error
		token, err = p.token(ctx, req.Token)
		return err
	}); err != nil {
		return nil, err
	}

	var release func()
	if err := step(logger, StepLock, func() error {
		var err error
		release, err = p.locks.acquire(ctx, folder)
		return err
	}); err != nil {
		return nil, err
	}
	defer release()

	app := link.AppName()
	short := strings.SplitN(runID, "-", 2)[0]
	work := filepath.Join(folder, constants.WorkDirPrefix+short)
	l := &layout{
		project:     filepath.Join(folder, app),
		work:        work,
		bundleZip:   filepath.Join(work, "bundle.zip"),
		templateZip: filepath.Join(work, "template.zip"),
		templateDir: filepath.Join(work, "template"),
		staging:     filepath.Join(work, "staging"),
		previous:    filepath.Join(folder, "."+app+constants.PreviousSuffix+"-"+short),
	}
	res := &Result{RunID: runID, AppName: app, ProjectPath: l.project}
	tmp := &scratch{fs: p.fs, logger: logger}

	err := p.materialize(ctx, link, token, folder, l, res, tmp)
	if err != nil {
		tmp.removeAll()
		return nil, err
	}
	if p.keepDownloads {
		res.DownloadDir = l.work
		logger.Debug("keeping downloads", "dir", l.work)
	} else {
		tmp.removeAll()
	}

	if err := step(logger, StepOpen, func() error {
		return p.opener.Open(ctx, l.project)
	}); err != nil {
		return res, err
	}
	return res, nil
}

// layout keeps every scratch path under work, a hidden per-run folder next to project, so no
// app name can collide with a download or the template tree.
type layout struct {
	project     string
	work        string
	bundleZip   string
	templateZip string
	templateDir string
	staging     string
	previous    string
}

func (p *Provisioner) materialize(ctx context.Context, link deeplink.Link, token, folder string, l *layout, res *Result, tmp *scratch) error {
	if err := step(tmp.logger, StepPrepare, func() error {
		if err := p.fs.MkdirAll(folder, 0o755); err != nil {
			return err
		}
		tmp.track(l.work)
		return p.fs.MkdirAll(l.work, 0o755)
	}); err != nil {
		return err
	}

	var bundleURL string
	if err := step(tmp.logger, StepResolve, func() error {
		var err error
		bundleURL, err = p.endpoints.BundleURL(ctx, link.ResourceID, token)
		return err
	}); err != nil {
		return err
	}

	if err := step(tmp.logger, StepDownload, func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			r, err := p.downloader.Fetch(gctx, download.Request{
				URL:     bundleURL,
				Path:    l.bundleZip,
				Headers: map[string]string{"Authorization": "Bearer " + token},
			})
			if err != nil {
				return fmt.Errorf("bundle: %w", err)
			}
			res.BundleChecksum = r.Checksum
			return nil
		})
		g.Go(func() error {
			r, err := p.downloader.Fetch(gctx, download.Request{URL: p.template.ArchiveURL, Path: l.templateZip})
			if err != nil {
				return fmt.Errorf("template archive: %w", err)
			}
			res.TemplateChecksum = r.Checksum
			return nil
		})
		return g.Wait()
	}); err != nil {
		return err
	}

	if err := step(tmp.logger, StepExtractBundle, func() error {
		files, err := archive.Extract(p.fs, l.bundleZip, l.staging)
		res.Files = files
		return err
	}); err != nil {
		return err
	}

	if err := step(tmp.logger, StepExtractTemplate, func() error {
		_, err := archive.Extract(p.fs, l.templateZip, l.templateDir)
		return err
	}); err != nil {
		return err
	}

	if err := step(tmp.logger, StepCopyDevcontainer, func() error {
		src, err := p.template.Locate(p.fs, l.templateDir, link.Container)
		if err != nil {
			return err
		}
		return devcontainer.CopyDir(p.fs, src, filepath.Join(l.staging, devcontainer.DirName))
	}); err != nil {
		return err
	}

	if err := step(tmp.logger, StepFinalize, func() error {
		return p.swap(l, tmp.logger)
	}); err != nil {
		return err
	}
	res.DevcontainerPath = filepath.Join(l.project, devcontainer.DirName)
	return nil
}

// swap moves staging onto project. An existing project is set aside first and restored when
// the move fails.
func (p *Provisioner) swap(l *layout, logger *common.Logger) error {
	exists, err := afero.Exists(p.fs, l.project)
	if err != nil {
		return err
	}
	if !exists {
		return p.fs.Rename(l.staging, l.project)
	}
	if err := p.fs.Rename(l.project, l.previous); err != nil {
		return fmt.Errorf("set aside %s: %w", l.project, err)
	}
	if err := p.fs.Rename(l.staging, l.project); err != nil {
		if rerr := p.fs.Rename(l.previous, l.project); rerr != nil {
			logger.Error("failed to restore previous project", "path", l.project, "error", rerr)
		}
		return fmt.Errorf("move %s into place: %w", l.staging, err)
	}
	if err := p.fs.RemoveAll(l.previous); err != nil {
		logger.Warn("failed to remove previous project copy", "path", l.previous, "error", err)
	}
	return nil
}

func (p *Provisioner) folder(req Request) string {
	folder := strings.TrimSpace(req.Folder)
	if folder == "" {
		folder = strings.TrimSpace(req.Link.Folder)
	}
	if folder == "" {
		folder = strings.TrimSpace(p.defaultFolder)
	}
	if folder == "" {
		return ""
	}
	if abs, err := filepath.Abs(folder); err == nil {
		return abs
	}
	return filepath.Clean(folder)
}

func (p *Provisioner) token(ctx context.Context, explicit string) (string, error) {
	token := auth.Normalize(explicit)
	if token == "" && p.tokens != nil {
		t, err := p.tokens.Acquire(ctx)
		if err != nil {
			return "", err
		}
		token = auth.Normalize(t)
	}
	if token == "" {
		return "", ErrNoToken
	}
	if err := auth.CheckExpiry(token, p.now()); err != nil {
		return "", err
	}
	return token, nil
}

// scratch tracks paths a run writes outside the final project folder.
type scratch struct {
	fs     afero.Fs
	logger *common.Logger
	paths  []string
}

func (s *scratch) track(paths ...string) { s.paths = append(s.paths, paths...) }

func (s *scratch) removeAll() {
	for i := len(s.paths) - 1; i >= 0; i-- {
		if err := s.fs.RemoveAll(s.paths[i]); err != nil {
			s.logger.Warn("cleanup failed", "path", s.paths[i], "error", err)
		}
	}
	s.paths = nil
}
