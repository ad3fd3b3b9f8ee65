package printer

import (
	"context"
	"io"
	"sync"

	"github.com/hennedo/escpos"

	"github.com/thereceipt/ticketprint/internal/layout"
)

// status byte of DLE EOT 1: bits 1 and 4 are always set, bits 0 and 7 clear
const (
	statusFixedMask = 0x93
	statusFixedBits = 0x12
	statusOffline   = 0x08
)

// EscposDriver writes directives to an ESC/POS printer connection
type EscposDriver struct {
	conn    Conn
	p       *escpos.Escpos
	enc     *ESCPOSEncoder
	mu      sync.Mutex
	align   layout.Alignment
	started bool
}

// NewEscposDriver creates a driver on an open connection
func NewEscposDriver(conn Conn) *EscposDriver {
	d := &EscposDriver{
		conn: conn,
		enc:  NewESCPOSEncoder(),
	}
	d.reset()
	return d
}

// reset starts a fresh buffer in normal character size and left alignment.
// hennedo/escpos prefixes every text write with GS ! built from the 1-based
// style size, so the size must be set before the first write.
func (d *EscposDriver) reset() {
	d.p = escpos.New(d.conn)
	d.p.Size(1, 1)
	d.p.Justify(escpos.JustifyLeft)
	d.align = layout.AlignLeft
	d.started = false
}

// Discard drops everything buffered since the last Send. A failed write
// leaves the buffer broken, so it is rebuilt as well.
func (d *EscposDriver) Discard() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reset()
}

// raw queues encoder output behind anything already buffered
func (d *EscposDriver) raw(op string, build func(*ESCPOSEncoder)) error {
	d.enc.Reset()
	if !d.started {
		d.enc.Initialize()
		d.started = true
	}
	build(d.enc)

	if _, err := d.p.WriteRaw(d.enc.GetBytes()); err != nil {
		return wrapDriverError(op, err)
	}
	return nil
}

// SetAlign applies to the following text and barcodes. Text carries its
// own ESC a from hennedo/escpos; barcodes get one from the encoder.
func (d *EscposDriver) SetAlign(align layout.Alignment) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.align = align
	if align == layout.AlignCenter {
		d.p.Justify(escpos.JustifyCenter)
	} else {
		d.p.Justify(escpos.JustifyLeft)
	}
	return nil
}

func (d *EscposDriver) EmitText(line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		if err := d.raw("text", func(*ESCPOSEncoder) {}); err != nil {
			return err
		}
	}
	if _, err := d.p.Write(line + "\n"); err != nil {
		return wrapDriverError("text", err)
	}
	return nil
}

func (d *EscposDriver) EmitBarcode(bc layout.Barcode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.raw("barcode", func(e *ESCPOSEncoder) {
		e.SetAlignment(d.align)
		e.Barcode(bc)
	})
}

func (d *EscposDriver) Feed(lines int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.raw("feed", func(e *ESCPOSEncoder) { e.Feed(lines) })
}

func (d *EscposDriver) Cut(mode layout.CutMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.raw("cut", func(e *ESCPOSEncoder) { e.Cut() })
}

// Send flushes every buffered directive to the printer
func (d *EscposDriver) Send(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	d.started = false
	if err := d.p.Print(); err != nil {
		return wrapDriverError("send", err)
	}
	return nil
}

// Status queries DLE EOT 1 directly on the connection
func (d *EscposDriver) Status(ctx context.Context) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	d.enc.Reset()
	if _, err := d.conn.Write(d.enc.StatusRequest().GetBytes()); err != nil {
		return Status{}, wrapDriverError("status", err)
	}

	buf := make([]byte, 1)
	if _, err := io.ReadFull(d.conn, buf); err != nil {
		return Status{}, wrapDriverError("status", err)
	}

	raw := buf[0]
	if raw&statusFixedMask != statusFixedBits {
		return Status{Raw: raw}, &DriverError{Op: "status", Code: int(raw)}
	}
	return Status{Online: raw&statusOffline == 0, Raw: raw}, nil
}

func (d *EscposDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.conn.Close()
}
