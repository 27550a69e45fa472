package assets

import (
	"io/fs"
	"strings"
	"testing"
)

func TestGetClientJS(t *testing.T) {
	data, err := GetClientJS()
	if err != nil {
		t.Fatalf("GetClientJS failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("GetClientJS returned empty data")
	}
	if !strings.Contains(string(data), "/actions/submit") {
		t.Error("client script should post to /actions/submit")
	}
}

func TestClientJSRecoversFromServerView(t *testing.T) {
	data, err := GetClientJS()
	if err != nil {
		t.Fatalf("GetClientJS failed: %v", err)
	}
	js := string(data)
	// A refused submit or a failed reset re-reads the server's view.
	if !strings.Contains(js, `fetch("/view"`) {
		t.Error("client script should re-read /view")
	}
	if strings.Count(js, "await refresh()") < 2 {
		t.Error("both the 409 submit path and the failed reset path should refresh")
	}
	if !strings.Contains(js, `msg.action === "tree"`) {
		t.Error("client script should apply status trees")
	}
}

func TestGetStatusTemplate(t *testing.T) {
	data, err := GetStatusTemplate()
	if err != nil {
		t.Fatalf("GetStatusTemplate failed: %v", err)
	}
	if !strings.Contains(string(data), "{{.Message}}") {
		t.Error("status fragment should render the message")
	}
}

func TestGetClientCSS(t *testing.T) {
	data, err := GetClientCSS()
	if err != nil {
		t.Fatalf("GetClientCSS failed: %v", err)
	}
	if !strings.Contains(string(data), ".hidden") {
		t.Error("stylesheet must define the hidden class")
	}
}

func TestGetIndexTemplateHasStableIDs(t *testing.T) {
	data, err := GetIndexTemplate()
	if err != nil {
		t.Fatalf("GetIndexTemplate failed: %v", err)
	}
	for _, id := range []string{
		"creation-form", "form-section", "loading-section", "results-section",
		"reset-btn", "story-output", "social-output", "magic-photo", "status",
	} {
		if !strings.Contains(string(data), `id="`+id+`"`) {
			t.Errorf("template missing element id %q", id)
		}
	}
}

func TestClientFS(t *testing.T) {
	entries, err := fs.ReadDir(ClientFS(), ".")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 client files, got %d", len(entries))
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"karigar.js":  "application/javascript; charset=utf-8",
		"karigar.css": "text/css; charset=utf-8",
		"logo.bin":    "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}
