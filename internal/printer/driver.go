// Package printer drives ESC/POS printers over USB, serial and TCP
package printer

import (
	"context"
	"errors"
	"fmt"

	"github.com/thereceipt/ticketprint/internal/layout"
)

var (
	// ErrNotConnected is returned when printing before a successful connect
	ErrNotConnected = errors.New("printer not connected")

	// ErrIncompleteDocument is returned for a document that does not end with a cut
	ErrIncompleteDocument = errors.New("document does not end with a cut")
)

// DriverError is a failure reported by the printer or its transport. Code
// carries the native status: the status byte or the libusb error code.
type DriverError struct {
	Op   string
	Code int
	Err  error
}

func (e *DriverError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("printer %s failed (status %d)", e.Op, e.Code)
	}
	return fmt.Sprintf("printer %s failed (status %d): %v", e.Op, e.Code, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// Status is the printer state read back from the device
type Status struct {
	Online bool `json:"online"`
	Raw    byte `json:"raw"`
}

// Driver consumes printer directives. Directives are buffered until Send;
// Discard drops them.
type Driver interface {
	SetAlign(align layout.Alignment) error
	EmitText(line string) error
	EmitBarcode(bc layout.Barcode) error
	Feed(lines int) error
	Cut(mode layout.CutMode) error
	Send(ctx context.Context) error
	Discard()
	Status(ctx context.Context) (Status, error)
	Close() error
}

// Emit hands every directive of docs to the driver in order and sends them
// once at the end. It stops at the first error; documents already handed
// over are not retracted.
func Emit(ctx context.Context, d Driver, docs []layout.Document) error {
	for i, doc := range docs {
		if !doc.Complete() {
			return fmt.Errorf("document %d: %w", i, ErrIncompleteDocument)
		}
	}

	for i, doc := range docs {
		for _, dir := range doc {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := apply(d, dir); err != nil {
				return fmt.Errorf("document %d: %s: %w", i, dir.Kind, err)
			}
		}
	}

	if err := d.Send(ctx); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

func apply(d Driver, dir layout.Directive) error {
	switch dir.Kind {
	case layout.KindAlign:
		return d.SetAlign(dir.Align)
	case layout.KindText:
		return d.EmitText(dir.Text)
	case layout.KindBarcode:
		if dir.Barcode == nil {
			return fmt.Errorf("barcode directive without barcode")
		}
		return d.EmitBarcode(*dir.Barcode)
	case layout.KindFeed:
		return d.Feed(dir.Lines)
	case layout.KindCut:
		return d.Cut(dir.Cut)
	default:
		return fmt.Errorf("unsupported directive: %s", dir.Kind)
	}
}
