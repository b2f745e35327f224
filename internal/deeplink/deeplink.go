package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMissingParam is wrapped when a required query key is absent or empty.
	ErrMissingParam = errors.New("deeplink: missing required parameter")
	// ErrInvalidParam is wrapped when a query value fails validation.
	ErrInvalidParam = errors.New("deeplink: invalid parameter")
)

// Query keys, matched case-insensitively. The first alias of each group is canonical.
var (
	resourceKeys  = []string{"res", "resourceid", "resource"}
	containerKeys = []string{"container", "devcontainer"}
	folderKeys    = []string{"folder", "dir"}
)

var (
	templateNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	appNameRe      = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,58}[A-Za-z0-9])?$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("template", func(fl validator.FieldLevel) bool {
		return templateNameRe.MatchString(fl.Field().String())
	})
	return v
}

// Link is a parsed provisioning deep link.
type Link struct {
	ResourceID ResourceID
	// Container names a dev-container template folder, e.g. "go" or "azure-functions-node".
	Container string `validate:"required,template"`
	// Folder optionally overrides the local target folder.
	Folder string
}

// AppName is the function app short name.
func (l Link) AppName() string { return l.ResourceID.Name }

// Query renders the link back into a canonical query string.
func (l Link) Query() string {
	q := url.Values{}
	q.Set(resourceKeys[0], l.ResourceID.String())
	q.Set(containerKeys[0], l.Container)
	if l.Folder != "" {
		q.Set(folderKeys[0], l.Folder)
	}
	return q.Encode()
}

// Parse accepts a full URI (vscode://publisher.extension/path?res=...&container=...), a query
// string with or without its leading '?', and returns the validated Link.
func Parse(raw string) (Link, error) {
	query, err := extractQuery(raw)
	if err != nil {
		return Link{}, err
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return Link{}, fmt.Errorf("%w: query: %v", ErrInvalidParam, err)
	}
	return FromValues(values)
}

// FromValues builds a Link from already-decoded query values, e.g. an HTTP request's URL.Query().
func FromValues(values url.Values) (Link, error) {
	lower := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) == 0 {
			continue
		}
		lk := strings.ToLower(strings.TrimSpace(k))
		if _, dup := lower[lk]; !dup {
			lower[lk] = strings.TrimSpace(v[0])
		}
	}

	res := lookup(lower, resourceKeys)
	if res == "" {
		return Link{}, fmt.Errorf("%w: %s", ErrMissingParam, resourceKeys[0])
	}
	rid, err := ParseResourceID(res)
	if err != nil {
		return Link{}, err
	}

	link := Link{
		ResourceID: rid,
		Container:  lookup(lower, containerKeys),
		Folder:     lookup(lower, folderKeys),
	}
	if err := link.Validate(); err != nil {
		return Link{}, err
	}
	return link, nil
}

// Validate checks a Link built by hand, e.g. from flags.
func (l Link) Validate() error {
	if l.ResourceID.Name == "" {
		return fmt.Errorf("%w: %s", ErrMissingParam, resourceKeys[0])
	}
	if l.Container == "" {
		return fmt.Errorf("%w: %s", ErrMissingParam, containerKeys[0])
	}
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("%w: container %q: %v", ErrInvalidParam, l.Container, err)
	}
	return nil
}

// New builds a Link from explicit values, applying the same validation as Parse.
func New(resourceID, container, folder string) (Link, error) {
	v := url.Values{}
	v.Set(resourceKeys[0], resourceID)
	v.Set(containerKeys[0], container)
	if folder != "" {
		v.Set(folderKeys[0], folder)
	}
	return FromValues(v)
}

func lookup(m map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

func extractQuery(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, resourceKeys[0])
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: uri: %v", ErrInvalidParam, err)
		}
		return u.RawQuery, nil
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[i+1:], nil
	}
	return s, nil
}
