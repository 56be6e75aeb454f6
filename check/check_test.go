package check

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/purl/materialize"
	"github.com/hazyhaar/purl/registry"
)

type recorder struct {
	mu       sync.Mutex
	messages []string
	ctxErrs  []error
}

func (r *recorder) Notify(ctx context.Context, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T, registryCSV string) (string, *registry.Store) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bin", "redirects.csv")
	os.MkdirAll(filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte(registryCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := registry.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	return dir, s
}

func TestParseModes(t *testing.T) {
	for in, want := range map[string]int{"local": 1, "remote": 1, "both": 2, "": 2} {
		got, err := ParseModes(in)
		if err != nil || len(got) != want {
			t.Errorf("ParseModes(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseModes("sideways"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestLocal_RoundTrip(t *testing.T) {
	// WHAT: materialize then check locally reports no failures.
	// WHY: generated pages must always satisfy the checker.
	dir, s := setup(t, "File,URL\nabc123.html,https://example.com/x\n")
	if _, err := materialize.New(dir, materialize.WithLogger(quietLogger())).Run(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	for _, strict := range []bool{false, true} {
		rep, err := New(dir, WithLogger(quietLogger()), WithStrict(strict)).Local(context.Background(), s)
		if err != nil {
			t.Fatal(err)
		}
		if len(rep.Failures) != 0 {
			t.Fatalf("strict=%v: unexpected failures %+v", strict, rep.Failures)
		}
		if rep.Checked != 1 {
			t.Fatalf("Checked: %d", rep.Checked)
		}
	}
}

func TestLocal_AccumulatesFailures(t *testing.T) {
	// WHAT: [A ok, B missing file, C ok] reports exactly [B] and still checks C.
	// WHY: one broken page must not hide the state of the rest.
	dir, s := setup(t, "File,URL\naaaaa.html,https://a.test\nbbbbb.html,https://b.test\nccccc.html,https://c.test\n")
	if _, err := materialize.New(dir, materialize.WithLogger(quietLogger())).Run(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	os.Remove(filepath.Join(dir, "bbbbb.html"))

	rep, _ := New(dir, WithLogger(quietLogger())).Local(context.Background(), s)
	if rep.Checked != 3 {
		t.Fatalf("Checked: %d, want 3", rep.Checked)
	}
	urls := rep.URLs()
	if len(urls) != 1 || urls[0] != "https://b.test" {
		t.Fatalf("failures: %v", urls)
	}
	if !strings.Contains(rep.Failures[0].Reason, "read page") {
		t.Fatalf("reason: %q", rep.Failures[0].Reason)
	}
}

func TestLocal_ContentMismatch(t *testing.T) {
	dir, s := setup(t, "File,URL\naaaaa.html,https://a.test/new\n")
	os.WriteFile(filepath.Join(dir, "aaaaa.html"), []byte(`<script>window.location.href = "https://a.test/old";</script>`), 0o644)

	rep, _ := New(dir, WithLogger(quietLogger())).Local(context.Background(), s)
	if len(rep.Failures) != 1 || rep.Failures[0].Reason != "URL not found in page" {
		t.Fatalf("failures: %+v", rep.Failures)
	}
}

func TestLocal_StrictCatchesHalfUpdatedPage(t *testing.T) {
	// WHAT: strict mode flags a page whose meta refresh points elsewhere.
	// WHY: the substring test passes as soon as one mechanism is right.
	dir, s := setup(t, "File,URL\naaaaa.html,https://a.test/x\n")
	content := `<html><head><script>window.location.href = "https://a.test/x";</script><meta name="robots" content="noindex, nofollow"></head>` +
		`<body><noscript><meta http-equiv="refresh" content="0;url=https://elsewhere.test"></noscript></body></html>`
	os.WriteFile(filepath.Join(dir, "aaaaa.html"), []byte(content), 0o644)

	if rep, _ := New(dir, WithLogger(quietLogger())).Local(context.Background(), s); len(rep.Failures) != 0 {
		t.Fatalf("lenient mode: %+v", rep.Failures)
	}
	rep, _ := New(dir, WithLogger(quietLogger()), WithStrict(true)).Local(context.Background(), s)
	if len(rep.Failures) != 1 || !strings.Contains(rep.Failures[0].Reason, "meta refresh") {
		t.Fatalf("strict mode: %+v", rep.Failures)
	}
}

func TestRemote_SequentialWithDelay(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	csv := "File,URL\n" +
		"aaaaa.html," + srv.URL + "/a\n" +
		"bbbbb.html," + srv.URL + "/gone\n" +
		"ccccc.html," + srv.URL + "/a\n" +
		"ddddd.html," + srv.URL + "/c\n"
	dir, s := setup(t, csv)

	delay := 30 * time.Millisecond
	rep, err := New(dir, WithLogger(quietLogger()), WithDelay(delay)).Remote(context.Background(), s)
	if err != nil {
		t.Fatalf("Remote: %v", err)
	}
	if rep.Checked != 3 {
		t.Fatalf("Checked: %d, want 3 distinct URLs", rep.Checked)
	}
	if urls := rep.URLs(); len(urls) != 1 || urls[0] != srv.URL+"/gone" {
		t.Fatalf("failures: %v", urls)
	}
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(hits); i++ {
		if gap := hits[i].Sub(hits[i-1]); gap < delay {
			t.Errorf("requests %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestRemote_NetworkErrorDoesNotStopLoop(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer live.Close()

	dir, s := setup(t, "File,URL\naaaaa.html,"+deadURL+"/x\nbbbbb.html,"+live.URL+"/y\n")
	rep, err := New(dir, WithLogger(quietLogger()), WithDelay(0)).Remote(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Checked != 2 || len(rep.Failures) != 1 || rep.Failures[0].URL != deadURL+"/x" {
		t.Fatalf("report: %+v", rep)
	}
}

func TestRemote_CancelledDuringDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	dir, s := setup(t, "File,URL\naaaaa.html,"+srv.URL+"/1\nbbbbb.html,"+srv.URL+"/2\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rep, err := New(dir, WithLogger(quietLogger()), WithDelay(time.Hour)).Remote(ctx, s)
	if err == nil {
		t.Fatal("expected context error")
	}
	if rep.Checked != 1 {
		t.Fatalf("Checked: %d", rep.Checked)
	}
}

func TestLocal_Cancelled(t *testing.T) {
	// WHAT: an interrupted local run returns the context error.
	// WHY: a partial report must not exit 0 as if every page passed.
	dir, s := setup(t, "File,URL\naaaaa.html,https://a.test\nbbbbb.html,https://b.test\n")
	if _, err := materialize.New(dir, materialize.WithLogger(quietLogger())).Run(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := New(dir, WithLogger(quietLogger())).Local(ctx, s)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Local err = %v, want context.Canceled", err)
	}
	if rep.Checked != 0 {
		t.Fatalf("Checked: %d", rep.Checked)
	}

	reports, err := New(dir, WithLogger(quietLogger())).Run(ctx, s, Local, Remote)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if len(reports) != 1 {
		t.Fatalf("remote mode ran after interruption: %+v", reports)
	}
}

func TestRun_InterruptedStillNotifies(t *testing.T) {
	// WHAT: failures found before an interruption are delivered with a live context.
	// WHY: SIGINT during the remote pause must not swallow the alert.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	dir, s := setup(t, "File,URL\naaaaa.html,"+srv.URL+"/1\nbbbbb.html,"+srv.URL+"/2\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rec := &recorder{}
	_, err := New(dir, WithLogger(quietLogger()), WithDelay(time.Hour), WithNotifier(rec)).Run(ctx, s, Remote)
	if err == nil {
		t.Fatal("expected context error")
	}
	if len(rec.messages) != 1 || rec.messages[0] != "The following URLs failed:\n"+srv.URL+"/1" {
		t.Fatalf("notifications: %q", rec.messages)
	}
	if rec.ctxErrs[0] != nil {
		t.Fatalf("notification context already done: %v", rec.ctxErrs[0])
	}
}

func TestRun_NotifiesOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir, s := setup(t, "File,URL\naaaaa.html,"+srv.URL+"/x\n")
	rec := &recorder{}
	c := New(dir, WithLogger(quietLogger()), WithDelay(0), WithNotifier(rec))

	reports, err := c.Run(context.Background(), s, Local, Remote)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 || reports[0].RunID == "" || reports[0].RunID != reports[1].RunID {
		t.Fatalf("reports: %+v", reports)
	}
	if len(rec.messages) != 1 {
		t.Fatalf("notifications: %d", len(rec.messages))
	}
	want := "The following URLs failed:\n" + srv.URL + "/x"
	if rec.messages[0] != want {
		t.Fatalf("message: %q, want %q", rec.messages[0], want)
	}
}

func TestRun_NoNotificationWhenClean(t *testing.T) {
	dir, s := setup(t, "File,URL\nabc123.html,https://example.com/x\n")
	if _, err := materialize.New(dir, materialize.WithLogger(quietLogger())).Run(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	if _, err := New(dir, WithLogger(quietLogger()), WithNotifier(rec)).Run(context.Background(), s, Local); err != nil {
		t.Fatal(err)
	}
	if len(rec.messages) != 0 {
		t.Fatalf("unexpected notification: %v", rec.messages)
	}
}
