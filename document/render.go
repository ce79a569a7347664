package document

import (
	"io"
	"strings"
	"text/template"

	pool "github.com/libp2p/go-buffer-pool"
	"golang.org/x/net/html"
)

const script = `<script{{range .Attrs}} {{.Key}}="{{escape .Val}}"{{end}}>{{.Body}}</script>`

var scriptTemplate = template.Must(template.New("script").Funcs(template.FuncMap{
	"escape": html.EscapeString,
}).Parse(script))

// Render writes the document back out as HTML.
func (d *Document) Render(w io.Writer) error {
	b := pool.NewBuffer(nil)
	defer b.Reset()

	for m := d.head; m != nil; m = m.next {
		if err := m.render(b); err != nil {
			return err
		}
	}

	_, err := w.Write(b.Bytes())
	return err
}

func (d *Document) String() string {
	var sb strings.Builder
	d.Render(&sb)
	return sb.String()
}

func (m *Marker) render(w io.Writer) error {
	switch {
	case m.kind == KindText:
		_, err := io.WriteString(w, m.body)
		return err
	case m.open != "":
		_, err := io.WriteString(w, m.open+m.body+m.close)
		return err
	default:
		return scriptTemplate.Execute(w, m)
	}
}

func (m *Marker) String() string {
	var sb strings.Builder
	m.render(&sb)
	return sb.String()
}
