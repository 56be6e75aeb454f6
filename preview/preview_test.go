package preview

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/purl/page"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "bin"), 0o755)
	os.WriteFile(filepath.Join(dir, "bin", "redirects.csv"), []byte("File,URL\nabc12.html,https://a.test\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "abc12.html"), page.Builder{}.Render("https://a.test"), 0o644)
	os.WriteFile(filepath.Join(dir, ".page-123"), []byte("partial"), 0o644)

	s := New(dir, filepath.Join(dir, "bin", "redirects.csv"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv, dir
}

func TestServesPages(t *testing.T) {
	// WHAT: generated pages are served as-is with a CSP that allows the inline redirect.
	// WHY: a stricter policy would block the script and hide redirect bugs in preview.
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/abc12.html")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if string(body) != string(page.Builder{}.Render("https://a.test")) {
		t.Fatalf("body differs: %s", body)
	}
	if csp := resp.Header.Get("Content-Security-Policy"); !strings.Contains(csp, "'unsafe-inline'") {
		t.Fatalf("CSP: %q", csp)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("nosniff missing")
	}
}

func TestHidesDotfiles(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/.page-123")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got map[string]any
	json.NewDecoder(resp.Body).Decode(&got)
	if got["status"] != "ok" || got["entries"] != float64(1) {
		t.Fatalf("healthz: %v", got)
	}
}

func TestRegistryCSV(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/registry.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Errorf("content type: %s", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(body), "abc12.html,https://a.test") {
		t.Fatalf("body: %s", body)
	}
}

func TestHead(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Head(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("HEAD status: %d", resp.StatusCode)
	}
}
