package preview

import (
	"bytes"
	"errors"
	"image/png"
	"strings"
	"testing"

	"github.com/thereceipt/ticketprint/internal/layout"
	"github.com/thereceipt/ticketprint/pkg/ticketformat"
)

func testPage() []layout.Document {
	return []layout.Document{layout.TestPage(layout.DefaultConfig(), layout.TestPageData{})}
}

func TestImage_PaperWidths(t *testing.T) {
	tests := []struct {
		paper string
		width int
	}{
		{"58mm", 384},
		{"80mm", 576},
		{"112mm", 832},
		{"", 576},
	}

	for _, tt := range tests {
		t.Run(tt.paper, func(t *testing.T) {
			img, err := Image(testPage(), tt.paper)
			if err != nil {
				t.Fatalf("Image() error = %v", err)
			}
			if got := img.Bounds().Dx(); got != tt.width {
				t.Errorf("Width = %d, want %d", got, tt.width)
			}
			if img.Bounds().Dy() <= 0 {
				t.Error("Image should have content")
			}
		})
	}
}

func TestRender_GrowsWithContent(t *testing.T) {
	short, err := New().Render(testPage())
	if err != nil {
		t.Fatal(err)
	}

	var doc layout.Document
	for i := 0; i < 200; i++ {
		doc = append(doc, layout.Directive{Kind: layout.KindText, Text: "LINE"})
	}
	doc = append(doc, layout.Directive{Kind: layout.KindCut, Cut: layout.CutFeed})

	long, err := New().Render([]layout.Document{doc})
	if err != nil {
		t.Fatal(err)
	}
	if long.Bounds().Dy() < 200*lineHeight {
		t.Errorf("Height = %d, want at least %d", long.Bounds().Dy(), 200*lineHeight)
	}
	if long.Bounds().Dy() <= short.Bounds().Dy() {
		t.Error("Longer document should render taller")
	}
}

func TestRender_Barcodes(t *testing.T) {
	label, err := layout.BarcodeLabel(layout.DefaultConfig(), "TKT-0042", "Gate 3")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New().Render([]layout.Document{label}); err != nil {
		t.Errorf("Render() error = %v", err)
	}

	bad := layout.Document{
		{Kind: layout.KindBarcode, Barcode: &layout.Barcode{Value: "lower", Symbology: layout.CODE39, Width: 2, Height: 40}},
		{Kind: layout.KindCut, Cut: layout.CutFeed},
	}
	_, err = New().Render([]layout.Document{bad})
	if !errors.Is(err, ticketformat.ErrMalformedInput) || !strings.Contains(err.Error(), "CODE39") {
		t.Errorf("Expected a malformed input error naming CODE39, got %v", err)
	}
}

func TestPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := PNG(&buf, testPage(), "58mm"); err != nil {
		t.Fatalf("PNG() error = %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 384 {
		t.Errorf("Width = %d, want 384", img.Bounds().Dx())
	}
}
