package ticketformat

import (
	"encoding/json"
	"fmt"
	"os"
)

// ParseBatch parses a ticket batch document. The ticketData container must be
// an array and every entry must be an object.
func ParseBatch(data []byte) (*Batch, error) {
	raw, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	if err := validateArray(raw); err != nil {
		return nil, err
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	batch := &Batch{Tickets: make([]Ticket, 0, len(entries))}
	for i, entry := range entries {
		if !isObject(entry) {
			return nil, fmt.Errorf("%w: ticketData[%d] is not an object", ErrMalformedInput, i)
		}

		var ticket Ticket
		if err := json.Unmarshal(entry, &ticket); err != nil {
			return nil, fmt.Errorf("%w: ticketData[%d]: %v", ErrMalformedInput, i, err)
		}
		batch.Tickets = append(batch.Tickets, ticket)
	}

	return batch, nil
}

// ParseReceipt parses a receipt or void receipt document. The ticketData
// container must be an object.
func ParseReceipt(data []byte) (*Receipt, error) {
	raw, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	if err := validateObject(raw); err != nil {
		return nil, err
	}

	var receipt Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	return &receipt, nil
}

// ReadFile reads a document from disk
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}
	return data, nil
}
