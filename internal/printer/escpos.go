package printer

import (
	"bytes"

	"github.com/thereceipt/ticketprint/internal/layout"
)

// ESC/POS commands
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	DLE byte = 0x10
	EOT byte = 0x04
)

// Barcode systems for GS k (function B)
const (
	barcodeCODE39  byte = 69
	barcodeCODE128 byte = 73
)

// ESCPOSEncoder builds raw ESC/POS command bytes
type ESCPOSEncoder struct {
	buffer *bytes.Buffer
}

// NewESCPOSEncoder creates a new ESC/POS encoder
func NewESCPOSEncoder() *ESCPOSEncoder {
	return &ESCPOSEncoder{
		buffer: new(bytes.Buffer),
	}
}

// Initialize resets the printer to its power-on settings
func (e *ESCPOSEncoder) Initialize() *ESCPOSEncoder {
	e.buffer.Write([]byte{ESC, '@'})
	return e
}

// SetAlignment sets justification for text and barcodes
func (e *ESCPOSEncoder) SetAlignment(align layout.Alignment) *ESCPOSEncoder {
	n := byte(0)
	if align == layout.AlignCenter {
		n = 1
	}
	e.buffer.Write([]byte{ESC, 'a', n})
	return e
}

// Feed prints the buffer and feeds n lines
func (e *ESCPOSEncoder) Feed(lines int) *ESCPOSEncoder {
	for lines > 0 {
		n := lines
		if n > 255 {
			n = 255
		}
		e.buffer.Write([]byte{ESC, 'd', byte(n)})
		lines -= n
	}
	return e
}

// Cut feeds to the cutter and performs a partial cut
func (e *ESCPOSEncoder) Cut() *ESCPOSEncoder {
	e.buffer.Write([]byte{GS, 'V', 66, 0})
	return e
}

// Barcode prints a CODE39 or CODE128 barcode
func (e *ESCPOSEncoder) Barcode(bc layout.Barcode) *ESCPOSEncoder {
	width := clamp(bc.Width, 2, 6)
	height := clamp(bc.Height, 1, 255)

	e.buffer.Write([]byte{GS, 'H', hriPosition(bc.HRI)})
	e.buffer.Write([]byte{GS, 'f', hriFont(bc.Font)})
	e.buffer.Write([]byte{GS, 'w', byte(width)})
	e.buffer.Write([]byte{GS, 'h', byte(height)})

	data := []byte(bc.Value)
	system := barcodeCODE39
	if bc.Symbology == layout.CODE128 {
		system = barcodeCODE128
		// code set B
		data = append([]byte{'{', 'B'}, data...)
	}
	if len(data) > 255 {
		data = data[:255]
	}

	e.buffer.Write([]byte{GS, 'k', system, byte(len(data))})
	e.buffer.Write(data)
	return e
}

// StatusRequest asks for the printer status byte (DLE EOT 1)
func (e *ESCPOSEncoder) StatusRequest() *ESCPOSEncoder {
	e.buffer.Write([]byte{DLE, EOT, 1})
	return e
}

// GetBytes returns the generated ESC/POS commands
func (e *ESCPOSEncoder) GetBytes() []byte {
	return e.buffer.Bytes()
}

// Reset clears the buffer
func (e *ESCPOSEncoder) Reset() {
	e.buffer.Reset()
}

func hriPosition(p layout.HRIPosition) byte {
	switch p {
	case layout.HRIAbove:
		return 1
	case layout.HRIBelow:
		return 2
	default:
		return 0
	}
}

func hriFont(f layout.Font) byte {
	if f == layout.FontB {
		return 1
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
