package deeplink

import (
	"fmt"
	"strings"
)

// ErrInvalidResourceID is wrapped for malformed ARM ids. It also matches ErrInvalidParam.
var ErrInvalidResourceID = fmt.Errorf("%w: resource id", ErrInvalidParam)

// ResourceID is a parsed Azure Resource Manager id:
//
//	/subscriptions/{sub}/resourceGroups/{group}/providers/{namespace}/{type}/{name}[/{childType}/{childName}...]
type ResourceID struct {
	Subscription  string
	ResourceGroup string
	Provider      string
	// Types and Names hold the resource type chain, e.g. ["sites","slots"] / ["myFunc","staging"].
	Types []string
	Names []string
	// Name is the final path segment.
	Name string
}

// ParseResourceID parses an ARM id. The app short name is the last segment; it must be a valid
// DNS label because it becomes part of the SCM host name.
func ParseResourceID(id string) (ResourceID, error) {
	trimmed := strings.Trim(strings.TrimSpace(id), "/")
	if trimmed == "" {
		return ResourceID{}, fmt.Errorf("%w: %s", ErrMissingParam, resourceKeys[0])
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" {
			return ResourceID{}, fmt.Errorf("%w %q has empty segment", ErrInvalidResourceID, id)
		}
	}

	var rid ResourceID
	i := 0
	expect := func(key string) (string, error) {
		if i+1 >= len(parts) || !strings.EqualFold(parts[i], key) {
			return "", fmt.Errorf("%w %q: expected %s segment", ErrInvalidResourceID, id, key)
		}
		v := parts[i+1]
		i += 2
		return v, nil
	}

	var err error
	if rid.Subscription, err = expect("subscriptions"); err != nil {
		return ResourceID{}, err
	}
	if rid.ResourceGroup, err = expect("resourceGroups"); err != nil {
		return ResourceID{}, err
	}
	if rid.Provider, err = expect("providers"); err != nil {
		return ResourceID{}, err
	}
	rest := parts[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return ResourceID{}, fmt.Errorf("%w %q: expected type/name pairs after provider", ErrInvalidResourceID, id)
	}
	for j := 0; j < len(rest); j += 2 {
		rid.Types = append(rid.Types, rest[j])
		rid.Names = append(rid.Names, rest[j+1])
	}
	rid.Name = rid.Names[len(rid.Names)-1]

	if !appNameRe.MatchString(rid.Name) {
		return ResourceID{}, fmt.Errorf("%w: app name %q is not a valid host label", ErrInvalidResourceID, rid.Name)
	}
	return rid, nil
}

// SiteName is the top-level site name; for a slot id it differs from Name.
func (r ResourceID) SiteName() string {
	if len(r.Names) == 0 {
		return ""
	}
	return r.Names[0]
}

// IsSlot reports whether the id points at a deployment slot.
func (r ResourceID) IsSlot() bool {
	return len(r.Types) > 1 && strings.EqualFold(r.Types[len(r.Types)-1], "slots")
}

// String renders the canonical id.
func (r ResourceID) String() string {
	if r.Subscription == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "/subscriptions/%s/resourceGroups/%s/providers/%s", r.Subscription, r.ResourceGroup, r.Provider)
	for i := range r.Types {
		fmt.Fprintf(&b, "/%s/%s", r.Types[i], r.Names[i])
	}
	return b.String()
}
