// Package document models a page as the ordered, mutable list of markers a
// streaming parser walks through. Markers execute one at a time; while one is
// executing, Write inserts new markers right after it (and after whatever it
// already wrote), and Remove may delete any marker including the executing
// one without losing the stream position.
package document

import (
	"fmt"
)

var (
	ErrClosed   = fmt.Errorf("document: no marker is executing")
	ErrDetached = fmt.Errorf("document: marker is not part of this document")
	ErrAttached = fmt.Errorf("document: marker is already attached")
)

type Document struct {
	head *Marker
	tail *Marker
	size int

	current *Marker
	// after is the last marker known to have executed: the stream resumes
	// at its successor, or at head when nil.
	after *Marker
	// anchor is where the next Write is inserted after, or head when nil.
	anchor    *Marker
	executing bool
}

func New() *Document {
	return &Document{}
}

// Append adds m at the end of the document.
func (d *Document) Append(m *Marker) error {
	if m.doc != nil {
		return ErrAttached
	}
	d.insertAfter(d.tail, m)
	return nil
}

// Begin positions the stream on the first marker and returns it.
func (d *Document) Begin() *Marker {
	d.after = nil
	return d.advance()
}

// Next moves the stream to the first marker that has not executed yet.
func (d *Document) Next() *Marker {
	if !d.executing {
		return nil
	}
	return d.advance()
}

func (d *Document) advance() *Marker {
	var n *Marker
	if d.after == nil {
		n = d.head
	} else {
		n = d.after.next
	}

	d.current = n
	d.after = n
	d.anchor = n
	d.executing = n != nil
	return n
}

// Current returns the marker that is executing, or nil once the stream has
// ended or when it was removed while executing.
func (d *Document) Current() *Marker {
	return d.current
}

// Write inserts m after the executing marker and after every marker that
// marker has already written.
func (d *Document) Write(m *Marker) error {
	if m.doc != nil {
		return ErrAttached
	}
	if !d.executing {
		return ErrClosed
	}

	d.insertAfter(d.anchor, m)
	d.anchor = m
	return nil
}

// Remove detaches m from the document.
func (d *Document) Remove(m *Marker) error {
	if m.doc != d {
		return ErrDetached
	}

	if d.after == m {
		d.after = m.prev
	}
	if d.anchor == m {
		d.anchor = m.prev
	}
	if d.current == m {
		d.current = nil
	}

	if m.prev != nil {
		m.prev.next = m.next
	} else {
		d.head = m.next
	}
	if m.next != nil {
		m.next.prev = m.prev
	} else {
		d.tail = m.prev
	}

	m.prev, m.next, m.doc = nil, nil, nil
	d.size--
	return nil
}

func (d *Document) Len() int {
	return d.size
}

// Markers returns every marker in document order.
func (d *Document) Markers() []*Marker {
	out := make([]*Marker, 0, d.size)
	for m := d.head; m != nil; m = m.next {
		out = append(out, m)
	}
	return out
}

// Scripts returns the script markers in document order.
func (d *Document) Scripts() []*Marker {
	out := make([]*Marker, 0)
	for m := d.head; m != nil; m = m.next {
		if m.kind == KindScript {
			out = append(out, m)
		}
	}
	return out
}

func (d *Document) insertAfter(at, m *Marker) {
	m.doc = d
	m.prev = at
	if at == nil {
		m.next = d.head
		d.head = m
	} else {
		m.next = at.next
		at.next = m
	}
	if m.next != nil {
		m.next.prev = m
	} else {
		d.tail = m
	}
	d.size++
}
