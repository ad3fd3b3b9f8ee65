package layout

import (
	"errors"
	"time"

	"github.com/thereceipt/ticketprint/pkg/ticketformat"
)

// DefaultOrderID is printed on the test page when no order id is given
const DefaultOrderID = "01209457"

// ErrEmptyBarcode is returned when a barcode label has no value
var ErrEmptyBarcode = errors.New("barcode value is empty")

// TestPageData is the input of the test page
type TestPageData struct {
	OrderID string
	Time    time.Time
}

// TestPage lays out the printer self-test page
func TestPage(cfg Config, data TestPageData) Document {
	orderID := data.OrderID
	if orderID == "" {
		orderID = DefaultOrderID
	}

	var b builder
	b.center()
	b.feed(2)
	b.text("AUTO-PRINT TEST")
	b.text("Barcode Test:")
	b.barcode(orderID, CODE39, 2, 80)
	b.feed(1)
	b.text("Barcode should appear above")
	b.text("Printer: " + cfg.PrinterModel)
	b.text("Time: " + data.Time.Format("2006-01-02 15:04:05"))
	b.feed(cfg.FooterFeed)
	return b.cut()
}

// TicketBatch lays out one document per ticket. The documents are meant to
// be sent to the printer together.
func TicketBatch(cfg Config, batch *ticketformat.Batch) []Document {
	if batch == nil {
		return nil
	}

	docs := make([]Document, 0, len(batch.Tickets))
	for _, t := range batch.Tickets {
		docs = append(docs, ticket(cfg, t))
	}
	return docs
}

func ticket(cfg Config, t ticketformat.Ticket) Document {
	var b builder

	b.center()
	b.text(cfg.Company)
	b.text(t.EventName.String())
	b.text("TRNNO " + cfg.TaxRegistrationNo)
	b.text(cfg.POBox)
	b.text(cfg.City)
	b.feed(1)
	b.text(ticketRule)

	b.left()
	b.text("Event Name: " + t.EventName.String())
	b.text("Event Date: " + t.EventDate.String())
	b.text("Event Time: " + t.EventTime.String())
	b.text("Items: " + t.ItemName.String())
	b.feed(1)

	for _, v := range t.BarcodeValues {
		b.center()
		b.barcode(v.String(), CODE39, 2, 80)
		b.feed(2)
		b.text("Order ID: " + v.String())
	}
	b.text(ticketRule)

	b.center()
	b.text("*** THIS IS YOUR TICKET ***")
	b.feed(1)
	b.text(cfg.TicketFooterNote)
	b.feed(cfg.FooterFeed)
	return b.cut()
}

// BarcodeLabel lays out a caption above a single CODE128 barcode
func BarcodeLabel(cfg Config, value, caption string) (Document, error) {
	if value == "" {
		return nil, ErrEmptyBarcode
	}

	var b builder
	b.center()
	b.text(caption)
	b.barcode(value, CODE128, 2, 80)
	b.feed(cfg.FooterFeed)
	return b.cut(), nil
}
