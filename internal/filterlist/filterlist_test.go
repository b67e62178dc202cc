package filterlist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Rorqualx/adscanner-go/internal/types"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "mixed rules",
			raw:  "##.ad-banner\n! note\n##.sponsored",
			want: []string{".ad-banner", ".sponsored"},
		},
		{
			name: "empty input",
			raw:  "",
			want: nil,
		},
		{
			name: "no cosmetic rules",
			raw:  "[Adblock Plus 2.0]\n||ads.example^\n@@||good.example^",
			want: nil,
		},
		{
			name: "surrounding whitespace trimmed",
			raw:  "##   div[id^=\"ad-\"]   \n##\t.promo\t",
			want: []string{`div[id^="ad-"]`, ".promo"},
		},
		{
			name: "windows line endings",
			raw:  "##.a\r\n##.b\r\n",
			want: []string{".a", ".b"},
		},
		{
			name: "domain scoped and exception rules ignored",
			raw:  "example.com##.local\n#@#.allowed\n##.global",
			want: []string{".global"},
		},
		{
			name: "duplicates preserved in order",
			raw:  "##.x\n##.y\n##.x",
			want: []string{".x", ".y", ".x"},
		},
		{
			name: "indented rule is not a rule",
			raw:  "  ##.indented\n##.real",
			want: []string{".real"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compile(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("Compile() = %q, want %q", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Compile()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCompile_OnlyCosmeticLinesSurvive(t *testing.T) {
	raw := strings.Join([]string{
		"! Title: test",
		"##.one",
		"||tracker.example^$third-party",
		"##  .two  ",
		"",
		"###three",
	}, "\n")

	got := Compile(raw)
	want := []string{".one", ".two", "#three"}
	if len(got) != len(want) {
		t.Fatalf("Compile() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Compile()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Compiling the re-serialized output yields the same selectors
	again := Compile("##" + strings.Join(got, "\n##"))
	for i := range got {
		if again[i] != got[i] {
			t.Errorf("recompile[%d] = %q, want %q", i, again[i], got[i])
		}
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.txt"))

	_, err := s.Load()
	if !errors.Is(err, types.ErrNoFilterList) {
		t.Errorf("Load() error = %v, want ErrNoFilterList", err)
	}
}

func TestStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "easylist.txt")
	s := NewStore(path)

	if err := s.Save("##.ad\n"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != "##.ad\n" {
		t.Errorf("Load() = %q, want %q", got, "##.ad\n")
	}

	// Overwrite
	if err := s.Save("##.other\n"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, _ = s.Load()
	if got != "##.other\n" {
		t.Errorf("Load() after overwrite = %q", got)
	}
}

func TestStore_EmptyFileIsNoList(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "empty.txt"))
	if err := s.Save(""); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := s.Load(); !errors.Is(err, types.ErrNoFilterList) {
		t.Errorf("Load() error = %v, want ErrNoFilterList", err)
	}
}

func TestFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected User-Agent header")
		}
		_, _ = w.Write([]byte("! list\n##.ad\n"))
	}))
	defer server.Close()

	got, err := NewFetcher(server.Client()).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got != "! list\n##.ad\n" {
		t.Errorf("Fetch() = %q", got)
	}
}

func TestFetcher_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewFetcher(nil).Fetch(context.Background(), server.URL)
	if !errors.Is(err, types.ErrFilterListFetch) {
		t.Errorf("Fetch() error = %v, want ErrFilterListFetch", err)
	}
}

func TestInstall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("##.a\n||b^\n##.c\n"))
	}))
	defer server.Close()

	store := NewStore(filepath.Join(t.TempDir(), "easylist.txt"))
	n, err := Install(context.Background(), NewFetcher(server.Client()), store, server.URL)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Install() selectors = %d, want 2", n)
	}
	if raw, err := store.Load(); err != nil || !strings.Contains(raw, "##.c") {
		t.Errorf("stored list = %q, err = %v", raw, err)
	}
}
