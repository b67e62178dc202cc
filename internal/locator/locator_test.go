package locator

import (
	"errors"
	"testing"
)

// fakeElement is an in-memory element tree node.
type fakeElement struct {
	tag      string
	id       string
	src      string
	children map[string]*fakeElement // selector -> first match
	outline  string
}

func (e *fakeElement) TagName() string { return e.tag }
func (e *fakeElement) ID() string      { return e.id }

func (e *fakeElement) Source() (string, bool) {
	return e.src, e.src != ""
}

func (e *fakeElement) QueryFirst(selector string) (Element, error) {
	if child, ok := e.children[selector]; ok {
		return child, nil
	}
	return nil, nil
}

func (e *fakeElement) OuterHTML() (string, error) {
	return "<" + e.tag + "></" + e.tag + ">", nil
}

func (e *fakeElement) SetOutline(value string) error {
	e.outline = value
	return nil
}

type fakeDocument struct {
	matches map[string][]*fakeElement
	invalid map[string]bool
}

func (d *fakeDocument) QueryAll(selector string) ([]Element, error) {
	if d.invalid[selector] {
		return nil, errors.New("syntax error")
	}
	var out []Element
	for _, el := range d.matches[selector] {
		out = append(out, el)
	}
	return out, nil
}

func TestLocate_DuplicatesAcrossSelectors(t *testing.T) {
	shared := &fakeElement{tag: "div", id: "slot"}
	doc := &fakeDocument{matches: map[string][]*fakeElement{
		".ad":      {shared},
		"#slot":    {shared},
		".unused":  nil,
		".sponsor": {{tag: "section"}},
	}}

	got := New(nil).Locate(doc, []string{".ad", ".unused", "#slot", ".sponsor"})
	if len(got) != 3 {
		t.Fatalf("Locate() returned %d candidates, want 3", len(got))
	}
	if got[0].Element != Element(shared) || got[1].Element != Element(shared) {
		t.Error("element matched by two selectors should be yielded twice")
	}
	wantSelectors := []string{".ad", "#slot", ".sponsor"}
	for i, want := range wantSelectors {
		if got[i].Selector != want {
			t.Errorf("candidate %d selector = %q, want %q", i, got[i].Selector, want)
		}
	}
}

func TestLocate_InvalidSelectorSkipped(t *testing.T) {
	doc := &fakeDocument{
		matches: map[string][]*fakeElement{".ok": {{tag: "div"}}},
		invalid: map[string]bool{"div[": true, "": true},
	}

	l := New(nil)
	got := l.Locate(doc, []string{"div[", "", ".ok"})
	if len(got) != 1 {
		t.Fatalf("Locate() returned %d candidates, want 1", len(got))
	}
	stats := l.Stats()
	if stats.InvalidSelectors != 2 || stats.Matches != 1 || stats.Selectors != 3 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestLocate_EmptySelectors(t *testing.T) {
	doc := &fakeDocument{}
	if got := New(nil).Locate(doc, nil); len(got) != 0 {
		t.Errorf("Locate(nil) = %d candidates, want 0", len(got))
	}
}

func TestLocate_Highlights(t *testing.T) {
	el := &fakeElement{tag: "div"}
	doc := &fakeDocument{matches: map[string][]*fakeElement{".ad": {el}}}

	New(Highlighter{}).Locate(doc, []string{".ad"})
	if el.outline != DefaultOutline {
		t.Errorf("outline = %q, want %q", el.outline, DefaultOutline)
	}

	plain := &fakeElement{tag: "div"}
	doc = &fakeDocument{matches: map[string][]*fakeElement{".ad": {plain}}}
	New(NoopAnnotator{}).Locate(doc, []string{".ad"})
	if plain.outline != "" {
		t.Errorf("NoopAnnotator set outline %q", plain.outline)
	}
}

func TestSourceURL(t *testing.T) {
	tests := []struct {
		name string
		el   *fakeElement
		want string
	}{
		{
			name: "iframe own src",
			el:   &fakeElement{tag: "IFRAME", src: "https://ads.example/frame"},
			want: "https://ads.example/frame",
		},
		{
			name: "img own src",
			el:   &fakeElement{tag: "img", src: "https://ads.example/x.png"},
			want: "https://ads.example/x.png",
		},
		{
			name: "descendant iframe preferred over img",
			el: &fakeElement{tag: "div", children: map[string]*fakeElement{
				"iframe[src]": {tag: "iframe", src: "https://ads.example/f"},
				"img[src]":    {tag: "img", src: "https://ads.example/i.png"},
			}},
			want: "https://ads.example/f",
		},
		{
			name: "descendant img",
			el: &fakeElement{tag: "div", children: map[string]*fakeElement{
				"img[src]": {tag: "img", src: "https://ads.example/x.png"},
			}},
			want: "https://ads.example/x.png",
		},
		{
			name: "src on non media element ignored",
			el:   &fakeElement{tag: "script", src: "https://cdn.example/a.js"},
			want: "",
		},
		{
			name: "nothing",
			el:   &fakeElement{tag: "div"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SourceURL(tt.el)
			if tt.want == "" {
				if got != nil {
					t.Errorf("SourceURL() = %q, want nil", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("SourceURL() = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestCandidate_Identifier(t *testing.T) {
	if got := (Candidate{Element: &fakeElement{id: "ad-1"}}).Identifier(); got != "ad-1" {
		t.Errorf("Identifier() = %q, want ad-1", got)
	}
	if got := (Candidate{Element: &fakeElement{}}).Identifier(); got != NoID {
		t.Errorf("Identifier() = %q, want %q", got, NoID)
	}
}
