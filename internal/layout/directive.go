// Package layout turns ticket and receipt documents into printer directives
package layout

import "fmt"

// Kind identifies a directive
type Kind string

const (
	KindAlign   Kind = "align"
	KindText    Kind = "text"
	KindBarcode Kind = "barcode"
	KindFeed    Kind = "feed"
	KindCut     Kind = "cut"
)

// Alignment of subsequent text and barcodes
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
)

// Symbology is the barcode encoding
type Symbology string

const (
	CODE39  Symbology = "CODE39"
	CODE128 Symbology = "CODE128"
)

// HRIPosition is where the human readable interpretation is printed
type HRIPosition string

const (
	HRINone  HRIPosition = "none"
	HRIAbove HRIPosition = "above"
	HRIBelow HRIPosition = "below"
)

// Font selects the printer font used for HRI text
type Font string

const (
	FontA Font = "A"
	FontB Font = "B"
)

// CutMode selects how the paper is cut
type CutMode string

const (
	// CutFeed feeds to the cutter position before cutting
	CutFeed CutMode = "feed"
)

// Barcode describes a barcode directive
type Barcode struct {
	Value     string      `json:"value"`
	Symbology Symbology   `json:"symbology"`
	HRI       HRIPosition `json:"hri"`
	Font      Font        `json:"font"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
}

// Directive is one printer instruction
type Directive struct {
	Kind    Kind      `json:"kind"`
	Align   Alignment `json:"align,omitempty"`
	Text    string    `json:"text,omitempty"`
	Barcode *Barcode  `json:"barcode,omitempty"`
	Lines   int       `json:"lines,omitempty"`
	Cut     CutMode   `json:"cut,omitempty"`
}

func (d Directive) String() string {
	switch d.Kind {
	case KindAlign:
		return fmt.Sprintf("align(%s)", d.Align)
	case KindText:
		return fmt.Sprintf("text(%q)", d.Text)
	case KindBarcode:
		return fmt.Sprintf("barcode(%s %q %dx%d)", d.Barcode.Symbology, d.Barcode.Value, d.Barcode.Width, d.Barcode.Height)
	case KindFeed:
		return fmt.Sprintf("feed(%d)", d.Lines)
	case KindCut:
		return fmt.Sprintf("cut(%s)", d.Cut)
	}
	return string(d.Kind)
}

// Document is an ordered directive list that ends with a cut
type Document []Directive

// Complete reports whether the document ends with a cut
func (d Document) Complete() bool {
	return len(d) > 0 && d[len(d)-1].Kind == KindCut
}

// Lines returns the text of every text directive in order
func (d Document) Lines() []string {
	var lines []string
	for _, dir := range d {
		if dir.Kind == KindText {
			lines = append(lines, dir.Text)
		}
	}
	return lines
}

// builder accumulates the directives of one document
type builder struct {
	doc Document
}

func (b *builder) align(a Alignment) {
	b.doc = append(b.doc, Directive{Kind: KindAlign, Align: a})
}

func (b *builder) center() { b.align(AlignCenter) }

func (b *builder) left() { b.align(AlignLeft) }

// text emits one directive per printed line
func (b *builder) text(s string) {
	for _, line := range splitLines(s) {
		b.doc = append(b.doc, Directive{Kind: KindText, Text: line})
	}
}

func (b *builder) textIf(cond bool, s string) {
	if cond {
		b.text(s)
	}
}

func (b *builder) feed(n int) {
	if n <= 0 {
		return
	}
	b.doc = append(b.doc, Directive{Kind: KindFeed, Lines: n})
}

func (b *builder) barcode(value string, sym Symbology, width, height int) {
	b.doc = append(b.doc, Directive{
		Kind: KindBarcode,
		Barcode: &Barcode{
			Value:     value,
			Symbology: sym,
			HRI:       HRIBelow,
			Font:      FontA,
			Width:     width,
			Height:    height,
		},
	})
}

func (b *builder) cut() Document {
	b.doc = append(b.doc, Directive{Kind: KindCut, Cut: CutFeed})
	return b.doc
}
