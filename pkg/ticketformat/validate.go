package ticketformat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedInput is returned when the ticketData container is missing or
// has the wrong JSON type for the requested document
var ErrMalformedInput = errors.New("ticketData is malformed")

// envelope is the top-level shape shared by every document
type envelope struct {
	TicketData json.RawMessage `json:"ticketData"`
}

func decodeEnvelope(data []byte) (json.RawMessage, error) {
	if !isObject(data) {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrMalformedInput)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	return env.TicketData, nil
}

// validateArray checks the container is a JSON array
func validateArray(raw json.RawMessage) error {
	if !isArray(raw) {
		return fmt.Errorf("%w: ticketData is not an array or missing", ErrMalformedInput)
	}
	return nil
}

// validateObject checks the container is a JSON object
func validateObject(raw json.RawMessage) error {
	if !isObject(raw) {
		return fmt.Errorf("%w: ticketData is not an object or missing", ErrMalformedInput)
	}
	return nil
}

func isObject(raw []byte) bool {
	return firstByte(raw) == '{'
}

func isArray(raw []byte) bool {
	return firstByte(raw) == '['
}

func firstByte(raw []byte) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}
