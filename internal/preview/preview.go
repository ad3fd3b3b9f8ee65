// Package preview rasterises printer directives so layouts can be checked
// without paper
package preview

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/code39"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/thereceipt/ticketprint/internal/layout"
	"github.com/thereceipt/ticketprint/pkg/ticketformat"
)

// The canvas is drawn at printer resolution for font A (48 columns of the
// 7x13 face) and scaled to the paper afterwards.
const (
	columns     = 48
	charWidth   = 7
	lineHeight  = 16
	margin      = 4
	canvasWidth = columns*charWidth + 2*margin
)

// Renderer draws directives onto a growing canvas
type Renderer struct {
	width  int
	height int
	ctx    *gg.Context
	y      float64
	align  layout.Alignment
}

// New creates an empty renderer
func New() *Renderer {
	r := &Renderer{
		width:  canvasWidth,
		height: 1000,
		align:  layout.AlignLeft,
	}
	r.ctx = newCanvas(r.width, r.height)
	return r
}

func newCanvas(width, height int) *gg.Context {
	ctx := gg.NewContext(width, height)
	ctx.SetColor(color.White)
	ctx.Clear()
	ctx.SetColor(color.Black)
	ctx.SetFontFace(basicfont.Face7x13)
	return ctx
}

// Render draws every document, one after another, and returns the image
// cropped to its content
func (r *Renderer) Render(docs []layout.Document) (image.Image, error) {
	for i, doc := range docs {
		for _, dir := range doc {
			if err := r.renderDirective(dir); err != nil {
				return nil, fmt.Errorf("document %d: %w", i, err)
			}
		}
	}
	return r.cropToContent(), nil
}

func (r *Renderer) renderDirective(dir layout.Directive) error {
	switch dir.Kind {
	case layout.KindAlign:
		r.align = dir.Align
	case layout.KindText:
		r.renderText(dir.Text)
	case layout.KindBarcode:
		if dir.Barcode == nil {
			return fmt.Errorf("barcode directive without barcode")
		}
		return r.renderBarcode(*dir.Barcode)
	case layout.KindFeed:
		r.y += float64(dir.Lines * lineHeight)
	case layout.KindCut:
		r.renderCut()
	default:
		return fmt.Errorf("unsupported directive: %s", dir.Kind)
	}
	return nil
}

func (r *Renderer) renderText(text string) {
	r.ensureHeight(lineHeight)
	r.drawLine(text)
	r.y += lineHeight
}

// drawLine draws one line of text at the current alignment
func (r *Renderer) drawLine(text string) {
	textWidth, _ := r.ctx.MeasureString(text)

	x := float64(margin)
	if r.align == layout.AlignCenter {
		x = (float64(r.width) - textWidth) / 2
	}

	// baseline sits on the lower part of the line
	r.ctx.DrawString(text, x, r.y+lineHeight-4)
}

func (r *Renderer) renderBarcode(bc layout.Barcode) error {
	if bc.Value == "" {
		return nil
	}

	var code barcode.Barcode
	var err error
	switch bc.Symbology {
	case layout.CODE39:
		code, err = code39.Encode(bc.Value, false, false)
	case layout.CODE128:
		code, err = code128.Encode(bc.Value)
	default:
		return fmt.Errorf("unsupported symbology: %s", bc.Symbology)
	}
	if err != nil {
		// barcode values come from the request
		return fmt.Errorf("%w: cannot encode %q as %s: %v", ticketformat.ErrMalformedInput, bc.Value, bc.Symbology, err)
	}

	module := bc.Width
	if module < 1 {
		module = 1
	}
	height := bc.Height
	if height < 1 {
		height = 1
	}

	scaled, err := barcode.Scale(code, code.Bounds().Dx()*module, height)
	if err != nil {
		return fmt.Errorf("failed to scale barcode: %w", err)
	}

	var img image.Image = scaled
	if img.Bounds().Dx() > r.width-2*margin {
		img = imaging.Resize(img, r.width-2*margin, height, imaging.NearestNeighbor)
	}

	if bc.HRI == layout.HRIAbove {
		r.renderText(bc.Value)
	}

	r.ensureHeight(img.Bounds().Dy() + lineHeight)

	x := margin
	if r.align == layout.AlignCenter {
		x = (r.width - img.Bounds().Dx()) / 2
	}
	r.ctx.DrawImage(img, x, int(r.y))
	r.y += float64(img.Bounds().Dy())

	if bc.HRI == layout.HRIBelow {
		r.renderText(bc.Value)
	}
	return nil
}

// renderCut marks the cut with a dashed line
func (r *Renderer) renderCut() {
	r.ensureHeight(lineHeight)

	y := r.y + lineHeight/2
	dashLength := 10.0
	gapLength := 5.0
	r.ctx.SetLineWidth(1)
	for x := 0.0; x < float64(r.width); x += dashLength + gapLength {
		endX := x + dashLength
		if endX > float64(r.width) {
			endX = float64(r.width)
		}
		r.ctx.DrawLine(x, y, endX, y)
		r.ctx.Stroke()
	}

	r.y += lineHeight
}

func (r *Renderer) cropToContent() image.Image {
	finalHeight := int(r.y) + margin
	if finalHeight > r.height {
		finalHeight = r.height
	}
	return imaging.Crop(r.ctx.Image(), image.Rect(0, 0, r.width, finalHeight))
}

func (r *Renderer) ensureHeight(neededHeight int) {
	if int(r.y)+neededHeight <= r.height {
		return
	}

	newHeight := r.height * 2
	if newHeight < int(r.y)+neededHeight {
		newHeight = int(r.y) + neededHeight + 1000
	}

	ctx := newCanvas(r.width, newHeight)
	ctx.DrawImage(r.ctx.Image(), 0, 0)
	ctx.SetColor(color.Black)

	r.ctx = ctx
	r.height = newHeight
}

// PaperWidthToPixels returns the printable width of a paper roll at 203 dpi
func PaperWidthToPixels(width string) int {
	switch width {
	case "58mm":
		return 384
	case "80mm":
		return 576
	case "112mm":
		return 832
	default:
		return 576
	}
}

// Image renders docs and scales the result to the paper width
func Image(docs []layout.Document, paperWidth string) (image.Image, error) {
	img, err := New().Render(docs)
	if err != nil {
		return nil, err
	}
	return imaging.Resize(img, PaperWidthToPixels(paperWidth), 0, imaging.NearestNeighbor), nil
}

// PNG renders docs and writes them to w as a PNG
func PNG(w io.Writer, docs []layout.Document, paperWidth string) error {
	img, err := Image(docs, paperWidth)
	if err != nil {
		return err
	}
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	return nil
}
