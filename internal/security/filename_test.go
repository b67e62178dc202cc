package security

import (
	"strings"
	"testing"
)

func TestSafeFileID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"plain", "google_ads_iframe_1", "google_ads_iframe_1"},
		{"no-id marker", "no-id", "no-id"},
		{"slashes", "../../etc/passwd", "______etc_passwd"},
		{"spaces and dots", "div gpt.ad", "div_gpt_ad"},
		{"unicode", "anúncio", "an_ncio"},
		{"empty", "", "_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeFileID(tt.id); got != tt.want {
				t.Errorf("SafeFileID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestSafeFileIDLength(t *testing.T) {
	got := SafeFileID(strings.Repeat("a", 500))
	if len(got) != maxFileIDLength {
		t.Errorf("len(SafeFileID(long)) = %d, want %d", len(got), maxFileIDLength)
	}
}

func FuzzSafeFileID(f *testing.F) {
	for _, seed := range []string{"", "no-id", "../x", "a b\x00c", "💥"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, id string) {
		got := SafeFileID(id)
		if got == "" {
			t.Fatal("SafeFileID returned empty string")
		}
		if unsafeFileChars.MatchString(got) {
			t.Fatalf("SafeFileID(%q) = %q contains unsafe characters", id, got)
		}
	})
}
