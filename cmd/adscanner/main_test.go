package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"

	"github.com/Rorqualx/adscanner-go/internal/config"
	"github.com/Rorqualx/adscanner-go/internal/store"
)

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.Use != "adscanner" {
		t.Errorf("expected use 'adscanner', got %q", cmd.Use)
	}
	if cmd.Version == "" {
		t.Error("expected non-empty version")
	}
	if cmd.PersistentFlags().Lookup("log-level") == nil {
		t.Error("expected log-level flag")
	}

	want := map[string]bool{"scan": false, "init": false, "serve": false, "config": false, "report": false, "version": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "adscanner version") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		setupLogging(&bytes.Buffer{}, tt.level)
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Errorf("setupLogging(%q) level = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestConfigSetAndShow(t *testing.T) {
	t.Setenv("SETTINGS_PATH", filepath.Join(t.TempDir(), "settings.yaml"))

	out, err := runCmd(t, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out, "http://localhost:5500/upload_ad") {
		t.Errorf("expected default upload URL, got %q", out)
	}

	if _, err := runCmd(t, "config", "set", "--url", "https://collector.test/", "--port", "6000"); err != nil {
		t.Fatalf("config set error = %v", err)
	}
	out, _ = runCmd(t, "config", "show")
	if !strings.Contains(out, "https://collector.test:6000/upload_ad") {
		t.Errorf("expected saved upload URL, got %q", out)
	}

	if _, err := runCmd(t, "config", "set", "--port", "7000"); err != nil {
		t.Fatalf("config set --port error = %v", err)
	}
	out, _ = runCmd(t, "config", "show")
	if !strings.Contains(out, "https://collector.test:7000/upload_ad") {
		t.Errorf("port-only set should keep the URL, got %q", out)
	}
}

func TestConfigSetRejects(t *testing.T) {
	t.Setenv("SETTINGS_PATH", filepath.Join(t.TempDir(), "settings.yaml"))

	tests := [][]string{
		{"config", "set"},
		{"config", "set", "--port", "0"},
		{"config", "set", "--port", "70000"},
		{"config", "set", "--url", "ftp://collector.test"},
	}
	for _, args := range tests {
		if _, err := runCmd(t, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestInitCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[Adblock Plus 2.0]\n! Title: test\n##.ad-banner\nexample.com##.sidebar-ad\n##.sponsored\n")
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "lists", "easylist.txt")
	t.Setenv("FILTER_LIST_PATH", path)

	out, err := runCmd(t, "init", "--url", srv.URL+"/easylist.txt")
	if err != nil {
		t.Fatalf("init error = %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("expected path in output, got %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "##.sponsored") {
		t.Errorf("stored list = %q, %v", data, err)
	}
}

func TestInitCmdRejectsBadURL(t *testing.T) {
	t.Setenv("FILTER_LIST_PATH", filepath.Join(t.TempDir(), "easylist.txt"))
	if _, err := runCmd(t, "init", "--url", "file:///etc/passwd"); err == nil {
		t.Error("expected error for non-http list URL")
	}
}

func TestScanArgs(t *testing.T) {
	if _, err := runCmd(t, "scan"); err == nil {
		t.Error("scan without URLs should fail")
	}
	if _, err := runCmd(t, "scan", "--html", "x.html", "https://a.example", "https://b.example"); err == nil {
		t.Error("scan --html with two URLs should fail")
	}
	if _, err := runCmd(t, "scan", "not a url"); err == nil {
		t.Error("scan with an invalid URL should fail")
	}
}

// TestScanStaticReportsToCollector runs a static scan against a live
// collector and checks the ad lands in its database.
func TestScanStaticReportsToCollector(t *testing.T) {
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "ad_data.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()

	handler, closeFn := newCollectorHandler(&config.Config{CollectorUploadDir: filepath.Join(dir, "shots")}, s)
	defer closeFn()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	settingsPath := filepath.Join(dir, "settings.yaml")
	writeFile(t, settingsPath, fmt.Sprintf("backendUrl: http://%s\nbackendPort: %s\n", u.Hostname(), u.Port()))
	listPath := filepath.Join(dir, "easylist.txt")
	writeFile(t, listPath, "! test list\n##.sponsored\n")
	pagePath := filepath.Join(dir, "page.html")
	writeFile(t, pagePath, `<html><body>
<p>article</p>
<div class="sponsored"><img src="https://ads.example/x.png"></div>
</body></html>`)

	t.Setenv("SETTINGS_PATH", settingsPath)
	t.Setenv("FILTER_LIST_PATH", listPath)

	out, err := runCmd(t, "scan", "--html", pagePath, "https://news.example/")
	if err != nil {
		t.Fatalf("scan error = %v", err)
	}
	if !strings.Contains(out, "news.example") {
		t.Errorf("summary missing page URL: %q", out)
	}

	ads, err := s.Latest(context.Background(), 10)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(ads) != 1 {
		t.Fatalf("expected exactly one stored ad, got %d", len(ads))
	}
	ad := ads[0]
	if ad.HTTPRequest != "https://ads.example/x.png" {
		t.Errorf("ad_url = %q", ad.HTTPRequest)
	}
	if ad.ETLD != "ads.example" {
		t.Errorf("etld = %q", ad.ETLD)
	}
	if ad.Context != "https://news.example/" {
		t.Errorf("context = %q", ad.Context)
	}
	if ad.ScreenshotPath != "" {
		t.Errorf("static scan should store no screenshot, got %q", ad.ScreenshotPath)
	}
}

func TestCollectorHandlerChain(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "ad_data.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()

	cfg := &config.Config{
		CollectorUploadDir: filepath.Join(dir, "shots"),
		RateLimitEnabled:   true,
		RateLimitRPM:       2,
	}
	handler, closeFn := newCollectorHandler(cfg, s)
	defer closeFn()

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/upload_ad", strings.NewReader(`{"ad_id":"x"}`))
		req.Header.Set("Origin", "https://news.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)

		if i == 0 && w.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("Allow-Origin = %q, want *", w.Header().Get("Access-Control-Allow-Origin"))
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}

func TestReportCmd(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ad_data.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	_, err = s.Insert(context.Background(), &store.Ad{
		AdID: "div-gpt-ad-1", BidMeta: "{}", ETLD: "doubleclick.net",
		HTTPRequest: "https://ad.doubleclick.net/x", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	_ = s.Close()

	t.Setenv("COLLECTOR_DB_PATH", dbPath)
	outPath := filepath.Join(dir, "reports", "digest.md")

	if _, err := runCmd(t, "report", "-o", outPath); err != nil {
		t.Fatalf("report error = %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{"# Ad Digest", "doubleclick.net", "div-gpt-ad-1"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("report missing %q", want)
		}
	}

	out, err := runCmd(t, "report")
	if err != nil || !strings.Contains(out, "# Ad Digest") {
		t.Errorf("report to stdout = %q, %v", out, err)
	}
}

func TestReportCmdMissingDatabase(t *testing.T) {
	t.Setenv("COLLECTOR_DB_PATH", filepath.Join(t.TempDir(), "missing.db"))
	if _, err := runCmd(t, "report"); err == nil {
		t.Error("expected error for missing database")
	}
}

func TestScanStaticSlowCollectorDeliversEveryAd(t *testing.T) {
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "ad_data.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()

	handler, closeFn := newCollectorHandler(&config.Config{CollectorUploadDir: filepath.Join(dir, "shots")}, s)
	defer closeFn()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	settingsPath := filepath.Join(dir, "settings.yaml")
	writeFile(t, settingsPath, fmt.Sprintf("backendUrl: http://%s\nbackendPort: %s\n", u.Hostname(), u.Port()))
	listPath := filepath.Join(dir, "easylist.txt")
	writeFile(t, listPath, "##.sponsored\n")

	var page strings.Builder
	page.WriteString("<html><body>")
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&page, `<div class="sponsored" id="ad%d">ad</div>`, i)
	}
	page.WriteString("</body></html>")
	pagePath := filepath.Join(dir, "page.html")
	writeFile(t, pagePath, page.String())

	t.Setenv("SETTINGS_PATH", settingsPath)
	t.Setenv("FILTER_LIST_PATH", listPath)
	t.Setenv("PAGE_TIMEOUT", "100ms")

	if _, err := runCmd(t, "scan", "--html", pagePath, "https://news.example/"); err != nil {
		t.Fatalf("scan error = %v", err)
	}

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 6 {
		t.Errorf("stored %d ads, want all 6", n)
	}
}

// blockingPool never hands out a browser.
type blockingPool struct{}

func (blockingPool) Acquire(ctx context.Context) (*rod.Browser, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingPool) Release(*rod.Browser) {}

func TestScanURLPageTimeoutBoundsAcquire(t *testing.T) {
	cfg := &config.Config{PageTimeout: 50 * time.Millisecond}
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	_, err := scanURL(parent, cfg, blockingPool{}, nil, "https://news.example/")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("scanURL() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("scanURL() took %v", elapsed)
	}
	if parent.Err() != nil {
		t.Error("page timeout must not cancel the parent context")
	}
}

func TestWithOptionalTimeout(t *testing.T) {
	ctx, cancel := withOptionalTimeout(context.Background(), 0)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("zero duration should not set a deadline")
	}

	ctx2, cancel2 := withOptionalTimeout(context.Background(), time.Minute)
	defer cancel2()
	if _, ok := ctx2.Deadline(); !ok {
		t.Error("positive duration should set a deadline")
	}
}
