package funcprov

import (
	"context"

	"github.com/loykin/funcprov/internal/auth"
	"github.com/loykin/funcprov/internal/common"
	"github.com/loykin/funcprov/internal/deeplink"
	"github.com/loykin/funcprov/internal/devcontainer"
	"github.com/loykin/funcprov/internal/download"
	"github.com/loykin/funcprov/internal/provision"
	"github.com/loykin/funcprov/internal/store"
)

// Re-export commonly used types for public API

// Link is a parsed deep link: the function app's resource id, a template name and an optional folder.
type Link = deeplink.Link

// ResourceID is an Azure resource path split into its subscription, group and site name.
type ResourceID = deeplink.ResourceID

// Request, Result and Options configure and report a provisioning run.
type (
	Request     = provision.Request
	Result      = provision.Result
	Options     = provision.Options
	Provisioner = provision.Provisioner
	Step        = provision.Step
	StepError   = provision.StepError
)

// Template locates dev-container definitions inside the template archive.
type Template = devcontainer.Template

var (
	ErrMissingParam      = deeplink.ErrMissingParam
	ErrInvalidParam      = deeplink.ErrInvalidParam
	ErrInvalidResourceID = deeplink.ErrInvalidResourceID
	ErrNoToken           = provision.ErrNoToken
	ErrNoFolder          = provision.ErrNoFolder
	ErrTemplateNotFound  = devcontainer.ErrTemplateNotFound
	ErrTokenExpired      = auth.ErrTokenExpired
	ErrStatus            = download.ErrStatus
)

// New builds a Provisioner; zero-valued options fall back to the OS filesystem,
// the public Azure cloud and the "code" editor.
func New(opts Options) *Provisioner { return provision.New(opts) }

// ParseLink extracts the link parameters from a vscode:// URI or a bare query string.
func ParseLink(uri string) (Link, error) { return deeplink.Parse(uri) }

// SetupLocalProjectFolder provisions the app named by uri into folder with default options.
func SetupLocalProjectFolder(ctx context.Context, uri, folder, token string) (*Result, error) {
	return provision.New(provision.Options{}).SetupLocalProjectFolder(ctx, uri, folder, token)
}

// FailedStep reports the step a provisioning error came from, or "" if err is not one.
func FailedStep(err error) Step { return provision.FailedStep(err) }

// DownloadResult describes a downloaded file.
type DownloadResult = download.Result

// DownloadFile fetches rawURL to destinationPath with the default client and retry policy.
func DownloadFile(ctx context.Context, rawURL, destinationPath string, headers map[string]string) (*DownloadResult, error) {
	return download.New(download.Options{}).DownloadFile(ctx, rawURL, destinationPath, headers)
}

// AuthMethod Plugin-style provider interface and registration
type AuthMethod = auth.Method

type AuthFactory = auth.Factory

// RegisterAuthProvider exposes custom auth provider registration for library users.
func RegisterAuthProvider(typ string, f AuthFactory) { auth.Register(typ, f) }

// AcquireToken obtains a token from the provider registered under typ and caches it under name.
func AcquireToken(ctx context.Context, typ, name string, spec map[string]interface{}) (string, error) {
	a := &auth.Auth{Type: typ, Name: name, Config: spec}
	return a.Acquire(ctx)
}

// Store records provisioning runs.
type Store = store.Store

// Run is one recorded provisioning attempt.
type Run = store.Run

// OpenSQLiteStore opens (and initializes) the run history at path.
func OpenSQLiteStore(ctx context.Context, path string) (*Store, error) {
	return store.Open(ctx, store.Config{Driver: store.DriverSqlite, DriverConfig: &store.SqliteConfig{Path: path}})
}

// Logger is the structured logger used across the library.
type Logger = common.Logger

type LogLevel = common.LogLevel

const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

func NewLogger(level LogLevel) *Logger      { return common.NewLogger(level) }
func NewJSONLogger(level LogLevel) *Logger  { return common.NewJSONLogger(level) }
func NewColorLogger(level LogLevel) *Logger { return common.NewColorLogger(level) }

// SetDefaultLogger replaces the logger used when Options.Logger is nil.
func SetDefaultLogger(l *Logger) { common.SetDefaultLogger(l) }
