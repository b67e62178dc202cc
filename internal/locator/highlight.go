package locator

// DefaultOutline is the CSS outline drawn around detected ads.
const DefaultOutline = "2px solid red"

// Outliner is implemented by elements that can be given a CSS outline.
type Outliner interface {
	SetOutline(value string) error
}

// Highlighter outlines elements that support it and ignores the rest.
type Highlighter struct {
	Outline string
}

// Annotate sets the outline on el.
func (h Highlighter) Annotate(el Element) error {
	o, ok := el.(Outliner)
	if !ok {
		return nil
	}
	outline := h.Outline
	if outline == "" {
		outline = DefaultOutline
	}
	return o.SetOutline(outline)
}
