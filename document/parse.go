package document

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Parse reads an HTML page and splits it into markers: one script marker per
// <script> element, and text markers holding everything in between verbatim.
func Parse(r io.Reader) (*Document, error) {
	d := New()
	z := html.NewTokenizer(r)

	var text strings.Builder
	flush := func() {
		if text.Len() == 0 {
			return
		}
		d.Append(NewText(text.String()))
		text.Reset()
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("document: %w", err)
			}
			flush()
			return d, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			// TagName and TagAttr lowercase the buffer in place
			open := string(z.Raw())

			name, hasAttr := z.TagName()
			if string(name) != "script" {
				text.WriteString(open)
				continue
			}

			var attrs []Attr
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				attrs = append(attrs, Attr{Key: string(k), Val: string(v)})
			}

			flush()
			body, end, err := scriptBody(z)
			if err != nil {
				return nil, err
			}
			m := NewScript(body, attrs...)
			m.open, m.close = open, end
			d.Append(m)

		default:
			text.Write(z.Raw())
		}
	}
}

// scriptBody consumes the raw text of a script element and its end tag. end
// is empty when the input stops before the end tag.
func scriptBody(z *html.Tokenizer) (body, end string, err error) {
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.TextToken:
			sb.Write(z.Raw())
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", "", fmt.Errorf("document: %w", err)
			}
			return sb.String(), "", nil
		default:
			return sb.String(), string(z.Raw()), nil
		}
	}
}
