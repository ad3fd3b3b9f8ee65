package service

import (
	"errors"
	"net/http"

	"github.com/thereceipt/ticketprint/internal/layout"
	"github.com/thereceipt/ticketprint/internal/permission"
	"github.com/thereceipt/ticketprint/internal/printer"
	"github.com/thereceipt/ticketprint/pkg/ticketformat"
)

// Machine-readable error codes
const (
	CodeNoDevice          = "NO_DEVICE"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodePermissionPending = "PERMISSION_PENDING"
	CodeNotConnected      = "NOT_CONNECTED"
	CodeMalformedInput    = "MALFORMED_INPUT"
	CodeDriverError       = "DRIVER_ERROR"
	CodeInternal          = "INTERNAL"
)

// Code maps an error to its machine code
func Code(err error) string {
	var de *printer.DriverError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, permission.ErrNoMatchingDevice),
		errors.Is(err, ErrUnknownDevice),
		errors.Is(err, permission.ErrNoPrompt):
		return CodeNoDevice
	case errors.Is(err, permission.ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, permission.ErrRequestPending):
		return CodePermissionPending
	case errors.Is(err, printer.ErrNotConnected):
		return CodeNotConnected
	case errors.Is(err, ticketformat.ErrMalformedInput),
		errors.Is(err, layout.ErrEmptyBarcode),
		errors.Is(err, ErrUnknownKind):
		return CodeMalformedInput
	case errors.As(err, &de):
		return CodeDriverError
	}
	return CodeInternal
}

// HTTPStatus maps an error code to a response status
func HTTPStatus(code string) int {
	switch code {
	case CodeNoDevice:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodePermissionPending, CodeNotConnected:
		return http.StatusConflict
	case CodeMalformedInput:
		return http.StatusBadRequest
	case CodeDriverError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
