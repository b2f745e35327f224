package deeplink

import (
	"errors"
	"net/url"
	"testing"
)

const siteID = "/subscriptions/x/resourceGroups/y/providers/Microsoft.Web/sites/myFunc"

func TestParse_Forms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"vscode uri", "vscode://ms-azuretools.vscode-azurefunctions/?res=" + siteID + "&container=go"},
		{"leading question mark", "?res=" + siteID + "&container=go"},
		{"bare query", "res=" + siteID + "&container=go"},
		{"reordered keys", "container=go&res=" + siteID},
		{"long aliases", "devContainer=go&resourceId=" + url.QueryEscape(siteID)},
		{"mixed case keys", "RES=" + siteID + "&Container=go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.raw, err)
			}
			if link.AppName() != "myFunc" {
				t.Errorf("AppName=%q, want myFunc", link.AppName())
			}
			if link.Container != "go" {
				t.Errorf("Container=%q, want go", link.Container)
			}
			if link.ResourceID.ResourceGroup != "y" || link.ResourceID.Subscription != "x" {
				t.Errorf("unexpected resource id %+v", link.ResourceID)
			}
		})
	}
}

func TestParse_MissingContainerFails(t *testing.T) {
	_, err := Parse("vscode://ext/?res=" + siteID)
	if !errors.Is(err, ErrMissingParam) {
		t.Fatalf("expected ErrMissingParam, got %v", err)
	}
}

func TestParse_MissingResourceFails(t *testing.T) {
	for _, raw := range []string{"", "container=go", "vscode://ext/?container=go&res="} {
		if _, err := Parse(raw); !errors.Is(err, ErrMissingParam) {
			t.Errorf("Parse(%q): expected ErrMissingParam, got %v", raw, err)
		}
	}
}

func TestParse_RejectsUnsafeContainer(t *testing.T) {
	for _, c := range []string{"../go", "go/../../etc", ".hidden", "a b"} {
		_, err := Parse("res=" + siteID + "&container=" + url.QueryEscape(c))
		if !errors.Is(err, ErrInvalidParam) {
			t.Errorf("container %q: expected ErrInvalidParam, got %v", c, err)
		}
	}
}

func TestParse_Folder(t *testing.T) {
	link, err := Parse("res=" + siteID + "&container=go&folder=" + url.QueryEscape("/tmp/work"))
	if err != nil {
		t.Fatal(err)
	}
	if link.Folder != "/tmp/work" {
		t.Fatalf("Folder=%q", link.Folder)
	}
}

func TestLink_QueryRoundTrip(t *testing.T) {
	link, err := New(siteID, "python-3", "")
	if err != nil {
		t.Fatal(err)
	}
	again, err := Parse(link.Query())
	if err != nil {
		t.Fatal(err)
	}
	if again.ResourceID.String() != siteID || again.Container != "python-3" {
		t.Fatalf("round trip mismatch: %+v", again)
	}
}

func TestParseResourceID(t *testing.T) {
	rid, err := ParseResourceID(siteID + "/slots/staging")
	if err != nil {
		t.Fatal(err)
	}
	if rid.Name != "staging" || rid.SiteName() != "myFunc" || !rid.IsSlot() {
		t.Fatalf("unexpected slot parse: %+v", rid)
	}

	bad := []string{
		"myFunc",
		"/subscriptions/x",
		"/subscriptions/x/resourceGroups/y/providers/Microsoft.Web/sites",
		"/subscriptions/x/resourceGroups/y/providers/Microsoft.Web/sites/my_func",
		"/subscriptions/x//resourceGroups/y/providers/Microsoft.Web/sites/f",
		"/tenants/x/resourceGroups/y/providers/Microsoft.Web/sites/f",
	}
	for _, id := range bad {
		if _, err := ParseResourceID(id); err == nil {
			t.Errorf("ParseResourceID(%q): expected error", id)
		}
	}
}

func TestParseResourceID_ErrorKinds(t *testing.T) {
	_, err := ParseResourceID("/subscriptions/x/resourceGroups/y")
	if !errors.Is(err, ErrInvalidResourceID) || !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidResourceID wrapping ErrInvalidParam, got %v", err)
	}
	if _, err := ParseResourceID("  "); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("expected ErrMissingParam, got %v", err)
	}
}

func TestLink_Validate(t *testing.T) {
	if err := (Link{}).Validate(); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("empty link: %v", err)
	}
	rid, err := ParseResourceID("/subscriptions/x/resourceGroups/y/providers/Microsoft.Web/sites/a1")
	if err != nil {
		t.Fatal(err)
	}
	if err := (Link{ResourceID: rid}).Validate(); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("missing container: %v", err)
	}
	if err := (Link{ResourceID: rid, Container: "../x"}).Validate(); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("unsafe container: %v", err)
	}
	if err := (Link{ResourceID: rid, Container: "go"}).Validate(); err != nil {
		t.Fatalf("valid link: %v", err)
	}
}
