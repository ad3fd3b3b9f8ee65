package printer

import (
	"errors"
	"io"

	"github.com/google/gousb"
)

// Conn is an open byte stream to a printer. Reads time out instead of
// blocking forever.
type Conn interface {
	io.ReadWriteCloser
}

var (
	_ Conn = (*USBConnection)(nil)
	_ Conn = (*SerialConnection)(nil)
	_ Conn = (*NetworkConnection)(nil)
)

// wrapDriverError attaches the native error code when there is one
func wrapDriverError(op string, err error) error {
	if err == nil {
		return nil
	}

	var de *DriverError
	if errors.As(err, &de) {
		return err
	}

	code := -1
	var usbErr gousb.Error
	if errors.As(err, &usbErr) {
		code = int(usbErr)
	}
	return &DriverError{Op: op, Code: code, Err: err}
}
