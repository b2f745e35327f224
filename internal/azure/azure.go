package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/loykin/funcprov/internal/common"
	"github.com/loykin/funcprov/internal/deeplink"
	"github.com/loykin/funcprov/internal/download"
	"github.com/loykin/funcprov/internal/httpc"
)

const (
	DefaultSCMSuffix          = "azurewebsites.net"
	DefaultManagementEndpoint = "https://management.azure.com"
	DefaultAPIVersion         = "2022-03-01"

	downloadPath       = "/api/functions/admin/download"
	repositoryHostPath = `properties.hostNameSslStates.#(hostType=="Repository").name`
)

// Config controls how the SCM (Kudu) host of an app is determined.
type Config struct {
	SCMSuffix          string `mapstructure:"scm_suffix" yaml:"scm_suffix"`
	ManagementEndpoint string `mapstructure:"management_endpoint" yaml:"management_endpoint"`
	APIVersion         string `mapstructure:"api_version" yaml:"api_version"`
	// ResolveSCMHost asks ARM for the repository host instead of deriving it from the app name.
	ResolveSCMHost bool `mapstructure:"resolve_scm_host" yaml:"resolve_scm_host"`
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.SCMSuffix) == "" {
		c.SCMSuffix = DefaultSCMSuffix
	}
	if strings.TrimSpace(c.ManagementEndpoint) == "" {
		c.ManagementEndpoint = DefaultManagementEndpoint
	}
	if strings.TrimSpace(c.APIVersion) == "" {
		c.APIVersion = DefaultAPIVersion
	}
	c.SCMSuffix = strings.Trim(c.SCMSuffix, ".")
	c.ManagementEndpoint = strings.TrimRight(c.ManagementEndpoint, "/")
	return c
}

// SCMDownloadURL is the Kudu endpoint that returns the app content, project file and settings
// as a single zip.
func SCMDownloadURL(host string) string {
	q := url.Values{}
	q.Set("includeCsproj", "true")
	q.Set("includeAppSettings", "true")
	u := url.URL{Scheme: "https", Host: host, Path: downloadPath, RawQuery: q.Encode()}
	return u.String()
}

// DefaultSCMHost derives the Kudu host: <site>.scm.<suffix>, or <site>-<slot>.scm.<suffix> for slots.
func DefaultSCMHost(rid deeplink.ResourceID, suffix string) string {
	if suffix == "" {
		suffix = DefaultSCMSuffix
	}
	label := rid.Name
	if rid.IsSlot() {
		label = rid.SiteName() + "-" + rid.Name
	}
	return label + ".scm." + suffix
}

// Resolver determines SCM hosts.
type Resolver struct {
	cfg    Config
	client *resty.Client
	logger *common.Logger
}

// NewResolver creates a Resolver. A nil h selects a default client.
func NewResolver(cfg Config, h *httpc.Httpc, logger *common.Logger) *Resolver {
	if h == nil {
		h = &httpc.Httpc{}
	}
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Resolver{
		cfg:    cfg.withDefaults(),
		client: h.New(),
		logger: logger.WithComponent("azure"),
	}
}

// Config returns the effective configuration.
func (r *Resolver) Config() Config { return r.cfg }

// SCMHost returns the Kudu host for rid. Without ARM lookup it never fails.
func (r *Resolver) SCMHost(ctx context.Context, rid deeplink.ResourceID, token string) (string, error) {
	derived := DefaultSCMHost(rid, r.cfg.SCMSuffix)
	if !r.cfg.ResolveSCMHost {
		return derived, nil
	}

	endpoint := r.cfg.ManagementEndpoint + rid.String()
	resp, err := r.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("api-version", r.cfg.APIVersion).
		SetHeader("Accept", "application/json").
		Get(endpoint)
	if err != nil {
		return "", fmt.Errorf("azure: get site %s: %w", rid.Name, err)
	}
	if !resp.IsSuccess() {
		return "", &download.StatusError{URL: endpoint, StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	host := gjson.GetBytes(resp.Body(), repositoryHostPath).String()
	if host == "" {
		r.logger.Warn("site has no repository host, using derived host", "app", rid.Name, "host", derived)
		return derived, nil
	}
	r.logger.Debug("resolved scm host", "app", rid.Name, "host", host, "status", http.StatusText(resp.StatusCode()))
	return host, nil
}

// BundleURL resolves the SCM host for rid and returns its content download endpoint.
func (r *Resolver) BundleURL(ctx context.Context, rid deeplink.ResourceID, token string) (string, error) {
	host, err := r.SCMHost(ctx, rid, token)
	if err != nil {
		return "", err
	}
	return SCMDownloadURL(host), nil
}
