package document

import "strings"

type Kind int

const (
	KindText Kind = iota
	KindScript
)

type Attr struct {
	Key string
	Val string
}

// Marker is one node of the document stream: a script element or a run of
// other markup kept verbatim.
type Marker struct {
	kind  Kind
	attrs []Attr
	body  string

	// raw start and end tags of a parsed script, rendered verbatim
	open  string
	close string

	doc  *Document
	prev *Marker
	next *Marker
}

// NewScript returns a detached script marker.
func NewScript(body string, attrs ...Attr) *Marker {
	return &Marker{
		kind:  KindScript,
		attrs: attrs,
		body:  body,
	}
}

// NewText returns a detached text marker holding raw markup.
func NewText(raw string) *Marker {
	return &Marker{
		kind: KindText,
		body: raw,
	}
}

func (m *Marker) Kind() Kind {
	return m.kind
}

func (m *Marker) IsScript() bool {
	return m.kind == KindScript
}

// Attr returns the value of the named attribute, or "" when it is missing.
func (m *Marker) Attr(key string) string {
	v, _ := m.LookupAttr(key)
	return v
}

func (m *Marker) LookupAttr(key string) (string, bool) {
	for _, a := range m.attrs {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func (m *Marker) Attrs() []Attr {
	return m.attrs
}

func (m *Marker) Src() string {
	return m.Attr("src")
}

// Body is the script source of an inline script, or the raw markup of a
// text marker.
func (m *Marker) Body() string {
	return m.body
}

// Prev returns the preceding sibling, or nil.
func (m *Marker) Prev() *Marker {
	return m.prev
}

func (m *Marker) Next() *Marker {
	return m.next
}

// Attached reports whether the marker is still part of a document.
func (m *Marker) Attached() bool {
	return m.doc != nil
}
