package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/loykin/funcprov/cmd/funcprov/config"
	acommon "github.com/loykin/funcprov/internal/auth/common"
	"github.com/loykin/funcprov/internal/azure"
	"github.com/loykin/funcprov/internal/common"
	"github.com/loykin/funcprov/internal/download"
	"github.com/loykin/funcprov/internal/httpc"
	"github.com/loykin/funcprov/internal/provision"
	"github.com/loykin/funcprov/internal/store"
	"github.com/loykin/funcprov/internal/workspace"
)

// App holds everything a command needs. It is built once per invocation and passed down.
type App struct {
	Config      *config.ConfigDoc
	Logger      *common.Logger
	Fs          afero.Fs
	HTTP        *httpc.Httpc
	Store       *store.Store
	Resolver    *azure.Resolver
	Downloader  *download.Downloader
	Provisioner *provision.Provisioner
}

// AppOptions selects which optional parts NewApp opens.
type AppOptions struct {
	// WithoutStore skips opening the history database.
	WithoutStore bool
}

// LoadConfig reads the file named by the "config" key, applies flag and environment overrides
// and validates the result. It also returns the directory used for the default SQLite file.
func LoadConfig(v *viper.Viper) (*config.ConfigDoc, string, error) {
	doc := &config.ConfigDoc{}
	baseDir := defaultDataDir()
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		if err := doc.Load(path); err != nil {
			return nil, "", fmt.Errorf("load config: %w", err)
		}
		baseDir = filepath.Dir(path)
	}
	applyOverrides(v, doc)
	if err := doc.Validate(); err != nil {
		return nil, "", err
	}
	return doc, baseDir, nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "funcprov")
	}
	return "."
}

func applyOverrides(v *viper.Viper, doc *config.ConfigDoc) {
	if s := v.GetString("log_level"); s != "" {
		doc.Logging.Level = s
	}
	if s := v.GetString("log_format"); s != "" {
		doc.Logging.Format = s
	}
	if s := v.GetString("editor"); s != "" {
		doc.Workspace.Editor = s
	}
	if v.GetBool("no_open") {
		open := false
		doc.Workspace.Open = &open
	}
	if v.GetBool("keep_downloads") {
		doc.Workspace.KeepDownloads = true
	}
	if v.GetBool("no_history") {
		doc.Store.Disabled = true
	}
	if s := v.GetString("listen"); s != "" {
		doc.Server.Addr = s
	}
}

// NewApp wires the configured components.
func NewApp(ctx context.Context, v *viper.Viper, opts AppOptions) (*App, error) {
	doc, baseDir, err := LoadConfig(v)
	if err != nil {
		return nil, err
	}
	logger, err := doc.SetupLogging()
	if err != nil {
		return nil, err
	}

	h := doc.HTTP()
	acommon.SetHTTPClient(h.New().GetClient())
	fs := afero.NewOsFs()

	app := &App{
		Config:   doc,
		Logger:   logger,
		Fs:       fs,
		HTTP:     h,
		Resolver: azure.NewResolver(doc.Azure, h, logger),
		Downloader: download.New(download.Options{
			HTTP:   h,
			Fs:     fs,
			Retry:  doc.Retry(),
			Logger: logger,
		}),
	}
	if !opts.WithoutStore {
		st, err := doc.OpenStore(ctx, baseDir)
		if err != nil {
			return nil, err
		}
		app.Store = st
	}

	var opener workspace.Opener = workspace.NoopOpener{}
	if doc.OpenEditor() {
		opener = workspace.EditorOpener{Command: doc.Workspace.Editor, Args: doc.Workspace.EditorArgs, Logger: logger}
	}
	popts := provision.Options{
		Fs:            fs,
		Downloader:    app.Downloader,
		Endpoints:     app.Resolver,
		Template:      doc.Devcontainer,
		Opener:        opener,
		DefaultFolder: doc.Workspace.Dir,
		KeepDownloads: doc.Workspace.KeepDownloads,
		Logger:        logger,
	}
	if app.Store != nil {
		popts.History = app.Store
	}
	if src := doc.TokenSource(); src != nil {
		popts.Tokens = src
	}
	app.Provisioner = provision.New(popts)
	return app, nil
}

// Close releases the history store.
func (a *App) Close() {
	if a == nil {
		return
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("failed to close history store", "error", err)
	}
}
