// Package ticketformat defines the JSON documents accepted by the print commands
package ticketformat

import (
	"bytes"
	"encoding/json"
)

// Field is a loosely-typed scalar. It keeps the JSON source text of the value:
// strings are stored unquoted, numbers keep their literal ("5.70" stays "5.70"),
// booleans become "true"/"false" and null or absent becomes "".
type Field string

// UnmarshalJSON stores the source representation of any JSON value
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Field(s)
		return nil
	}

	*f = Field(data)
	return nil
}

// String returns the field text
func (f Field) String() string {
	return string(f)
}

// Empty reports whether the field is absent or blank
func (f Field) Empty() bool {
	return f == ""
}

// FieldList is a lenient list of fields. Anything other than a JSON array
// decodes to an empty list.
type FieldList []Field

// UnmarshalJSON decodes an array of scalars, ignoring non-array input
func (l *FieldList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = nil
		return nil
	}

	fields := make(FieldList, 0, len(raw))
	for _, r := range raw {
		var f Field
		if err := f.UnmarshalJSON(r); err != nil {
			return err
		}
		fields = append(fields, f)
	}
	*l = fields
	return nil
}

// Item is one line of an itemized receipt
type Item struct {
	Qty         Field `json:"qty"`
	Description Field `json:"description"`
	Amount      Field `json:"amount"`
}

// ItemList is a lenient list of items. Entries that are not objects are skipped.
type ItemList []Item

// UnmarshalJSON decodes the items array, skipping malformed entries
func (l *ItemList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = nil
		return nil
	}

	items := make(ItemList, 0, len(raw))
	for _, r := range raw {
		if !isObject(r) {
			continue
		}
		var item Item
		if err := json.Unmarshal(r, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	*l = items
	return nil
}

// Ticket is one entry of a ticket batch
type Ticket struct {
	EventName     Field     `json:"eventName"`
	EventDate     Field     `json:"eventDate"`
	EventTime     Field     `json:"eventTime"`
	ItemName      Field     `json:"itemName"`
	BarcodeValues FieldList `json:"barcodeValue"`
}

// Batch is the document accepted by the ticket batch command:
// {"ticketData": [ {...}, ... ]}
type Batch struct {
	Tickets []Ticket
}

// Receipt is the document accepted by the receipt and void receipt commands:
// {"ticketData": { ... }}
type Receipt struct {
	Name              Field `json:"name"`
	Address           Field `json:"address"`
	TaxRegistrationNo Field `json:"taxRegistrationNo"`
	Instruction       Field `json:"instruction"`
	Website           Field `json:"website"`

	SaleNumber Field `json:"saleNumber"`
	Date       Field `json:"date"`
	Time       Field `json:"time"`
	PosNumber  Field `json:"posNumber"`
	UserID     Field `json:"userId"`

	Items ItemList `json:"items"`

	DiscountName  Field `json:"discountName"`
	DiscountTotal Field `json:"discountTotal"`
	TotalExclVat  Field `json:"totalExclVat"`
	VatAmount     Field `json:"vatAmount"`
	TotalInclVat  Field `json:"totalInclVat"`
	Cash          Field `json:"cash"`
	Change        Field `json:"change"`
	Balance       Field `json:"balance"`

	BarcodeValue Field `json:"barcodeValue"`
	TNC          Field `json:"tnc"`
}
