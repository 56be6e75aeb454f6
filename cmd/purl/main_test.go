package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/purl/registry"
)

type workspace struct {
	dir      string
	config   string
	registry string
}

// newWorkspace writes a config pointing every path into a temp dir.
func newWorkspace(t *testing.T, extra string) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:      dir,
		config:   filepath.Join(dir, "purl.yaml"),
		registry: filepath.Join(dir, "bin", "redirects.csv"),
	}
	cfg := fmt.Sprintf(`registry: %[1]s/bin/redirects.csv
site_dir: %[1]s
base_url: https://purl.example
readme:
  path: %[1]s/README.md
list:
  markdown: %[1]s/list/README.md
  csv: %[1]s/list/links.csv
  html: %[1]s/list/index.html
check:
  delay: 0s
log:
  dir: %[1]s/logs
  level: debug
%[2]s`, dir, extra)
	if err := os.WriteFile(ws.config, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return ws
}

func (ws workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), &out, append([]string{"--config", ws.config}, args...))
	return out.String(), err
}

func (ws workspace) entries(t *testing.T) []registry.Entry {
	t.Helper()
	s, err := registry.Open(ws.registry)
	if err != nil {
		t.Fatal(err)
	}
	return s.Entries()
}

func TestUsageErrors(t *testing.T) {
	// WHAT: missing positional arguments exit 1 with a usage line and do no work.
	// WHY: cron wrappers rely on the exit status to catch misconfigured jobs.
	ws := newWorkspace(t, "")
	for _, args := range [][]string{
		{"import"},
		{"import", "only-file.csv"},
		{"add-rows", "https://example.com"},
		{"add-rows", "https://example.com", "zero"},
		{"generate"},
	} {
		_, err := ws.run(t, args...)
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != 1 || !strings.HasPrefix(exitErr.Message, "Usage: purl "+args[0]) {
			t.Errorf("%v: got %v", args, err)
		}
	}
	if _, err := os.Stat(ws.registry); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("usage error must not create the registry")
	}
}

func TestAddRowsMaterializeCheck(t *testing.T) {
	ws := newWorkspace(t, "")
	out, err := ws.run(t, "add-rows", "https://example.com", "3")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "-> https://example.com") != 3 {
		t.Fatalf("add-rows output: %q", out)
	}
	entries := ws.entries(t)
	if len(entries) != 3 {
		t.Fatalf("entries: %+v", entries)
	}

	out, err = ws.run(t, "materialize")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "created 3, updated 0, unchanged 0") {
		t.Fatalf("materialize output: %q", out)
	}
	out, _ = ws.run(t, "materialize")
	if !strings.Contains(out, "created 0, updated 0, unchanged 3") {
		t.Fatalf("second materialize: %q", out)
	}

	out, err = ws.run(t, "check", "--mode", "local", "--strict")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "local: checked 3, failed 0") {
		t.Fatalf("check output: %q", out)
	}

	logData, err := os.ReadFile(filepath.Join(ws.dir, "logs", "main.log"))
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(logData), `"run_id"`) {
		t.Fatalf("check run not logged with run_id:\n%s", logData)
	}
}

func TestImport(t *testing.T) {
	ws := newWorkspace(t, "")
	src := filepath.Join(ws.dir, "export.csv")
	os.WriteFile(src, []byte(";;https://foo.test;bar\n;;notaurl;bar\n;;https://foo.test;dup\n"), 0o644)

	out, err := ws.run(t, "import", src, "2")
	if err != nil {
		t.Fatal(err)
	}
	entries := ws.entries(t)
	if len(entries) != 1 || entries[0].URL != "https://foo.test" {
		t.Fatalf("entries: %+v", entries)
	}
	if !strings.Contains(out, "added 1, already registered 1, skipped rows 1") {
		t.Fatalf("summary: %q", out)
	}

	ws.run(t, "import", src, "2")
	if n := len(ws.entries(t)); n != 1 {
		t.Fatalf("re-import added entries: %d", n)
	}
}

func TestGenerate(t *testing.T) {
	ws := newWorkspace(t, "")
	out, err := ws.run(t, "generate", "https://a.test/1", "https://b.test/2")
	if err != nil {
		t.Fatal(err)
	}
	blocks := strings.Split(strings.TrimSuffix(out, "\n\n"), "\n\n")
	if len(blocks) != 2 {
		t.Fatalf("output: %q", out)
	}
	for i, want := range []string{"https://a.test/1", "https://b.test/2"} {
		lines := strings.Split(blocks[i], "\n")
		if len(lines) != 2 || lines[0] != want || !strings.HasPrefix(lines[1], "https://purl.example/") {
			t.Fatalf("block %d: %q", i, blocks[i])
		}
		name := strings.TrimPrefix(lines[1], "https://purl.example/")
		data, err := os.ReadFile(filepath.Join(ws.dir, name))
		if err != nil || !strings.Contains(string(data), want) {
			t.Fatalf("page %s: %v", name, err)
		}
	}
	if _, err := os.Stat(ws.registry); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("generate must not touch the registry")
	}
}

func TestIndexAndUTM(t *testing.T) {
	ws := newWorkspace(t, "")
	os.WriteFile(filepath.Join(ws.dir, "README.md"),
		[]byte("# Links\n<!-- Existing PURLs -->\n<!-- End PURLs -->\n"), 0o644)
	os.MkdirAll(filepath.Dir(ws.registry), 0o755)
	os.WriteFile(ws.registry, []byte("File,URL\nabc12.html,https://a.test/x?utm_source=mail\n"), 0o644)

	out, err := ws.run(t, "index", "--format", "all", "--title", "Arkivets links")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "wrote ") != 4 {
		t.Fatalf("index output: %q", out)
	}
	readme, _ := os.ReadFile(filepath.Join(ws.dir, "README.md"))
	if !strings.Contains(string(readme), "* [https://purl.example/abc12.html](https://purl.example/abc12.html) ->  ") {
		t.Fatalf("README: %s", readme)
	}

	html, _ := os.ReadFile(filepath.Join(ws.dir, "list", "index.html"))
	if !strings.Contains(string(html), "<title>Arkivets links</title>") {
		t.Fatalf("index title: %s", html)
	}

	if _, err := ws.run(t, "utm"); err != nil {
		t.Fatal(err)
	}
	updated, err := registry.Open(filepath.Join(ws.dir, "bin", "redirects.updated.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if got := updated.Entries()[0].URL; got != "https://a.test/x?utm_campaign=default&utm_source=mail" {
		t.Fatalf("utm url: %s", got)
	}
	if ws.entries(t)[0].URL != "https://a.test/x?utm_source=mail" {
		t.Fatal("registry changed without --in-place")
	}
}

func TestCheckRemoteNotifies(t *testing.T) {
	// WHAT: failing remote URLs are printed and posted once to the webhook; exit status stays 0.
	// WHY: the check runs from cron, where the webhook is the alerting channel.
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
		}
	}))
	defer target.Close()

	var mu sync.Mutex
	var posts []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		posts = append(posts, body.Text)
		mu.Unlock()
	}))
	defer hook.Close()

	ws := newWorkspace(t, "notify:\n  webhook_url: "+hook.URL+"\n")
	os.MkdirAll(filepath.Dir(ws.registry), 0o755)
	os.WriteFile(ws.registry, []byte("File,URL\naaaaa.html,"+target.URL+"/ok\nbbbbb.html,"+target.URL+"/gone\n"), 0o644)

	out, err := ws.run(t, "check", "--mode", "remote")
	if err != nil {
		t.Fatalf("check returned %v", err)
	}
	if !strings.Contains(out, "remote: checked 2, failed 1") {
		t.Fatalf("output: %q", out)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(posts) != 1 || posts[0] != "The following URLs failed:\n"+target.URL+"/gone" {
		t.Fatalf("webhook posts: %q", posts)
	}
}

func TestCheckBadMode(t *testing.T) {
	ws := newWorkspace(t, "")
	_, err := ws.run(t, "check", "--mode", "sideways")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("got %v", err)
	}
}
