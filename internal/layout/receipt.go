package layout

import (
	"strings"

	"github.com/thereceipt/ticketprint/pkg/ticketformat"
)

// Column widths of the itemized receipt
const (
	receiptQtyWidth    = 4
	receiptDescWidth   = 27
	receiptAmountWidth = 9
	receiptLabelWidth  = 20
	receiptValueWidth  = 10
)

// Column widths of the void receipt
const (
	voidQtyWidth    = 6
	voidDescWidth   = 25
	voidAmountWidth = 10
	voidLabelWidth  = 25
	voidValueWidth  = 10
)

type total struct {
	label string
	value ticketformat.Field
}

// Receipt lays out an itemized sales receipt
func Receipt(cfg Config, r *ticketformat.Receipt) Document {
	var b builder

	trn := r.TaxRegistrationNo.String()
	if trn == "" {
		trn = cfg.TaxRegistrationNo
	}

	b.center()
	b.text(cfg.Company)
	b.textIf(!r.Name.Empty(), r.Name.String())
	b.textIf(!r.Address.Empty(), r.Address.String())
	b.text("TRNNO " + trn)
	b.text(cfg.POBox)
	b.text(cfg.City)
	b.feed(1)
	b.textIf(!r.Instruction.Empty(), r.Instruction.String())

	b.left()
	b.text("Sale No: " + r.SaleNumber.String())
	b.text("Date: " + r.Date.String() + "    Time: " + r.Time.String())
	b.text("POS No: " + r.PosNumber.String())
	b.text("User ID: " + r.UserID.String())
	b.text(receiptRule)

	b.text("QTY  ITEM DESCRIPTION            AMOUNT")
	b.text(receiptRule)
	for _, item := range r.Items {
		for _, line := range receiptItemRows(item) {
			b.text(line)
		}
	}
	b.text(receiptRule)

	if !r.DiscountName.Empty() && !suppressed(r.DiscountTotal) {
		b.text(receiptTotalRow(r.DiscountName.String(), r.DiscountTotal.String()))
	}
	for _, t := range []total{
		{"TOTAL EXCL VAT", r.TotalExclVat},
		{"VAT 5%", r.VatAmount},
		{"TOTAL INCL VAT", r.TotalInclVat},
		{"CASH", r.Cash},
		{"CHANGE", r.Change},
		{"BALANCE", r.Balance},
		{"TOTAL", r.TotalInclVat},
	} {
		if !suppressed(t.value) {
			b.text(receiptTotalRow(t.label, t.value.String()))
		}
	}
	b.text(receiptRule)

	if !r.BarcodeValue.Empty() {
		b.center()
		b.barcode(r.BarcodeValue.String(), CODE128, 2, 60)
		b.feed(1)
	}

	b.center()
	b.text("THANK YOU FOR VISITING US")
	b.text("*** TERMS AND CONDITIONS ***")
	b.text(plainText(r.TNC.String()))
	b.textIf(!r.Website.Empty(), r.Website.String())
	b.textIf(r.Address.Empty(), cfg.DefaultVenue)
	b.text(cfg.Hotline)
	b.feed(cfg.FooterFeed)
	return b.cut()
}

// VoidReceipt lays out the receipt printed when a sale is voided
func VoidReceipt(cfg Config, r *ticketformat.Receipt) Document {
	var b builder

	b.center()
	b.text("***** VOID RECEIPT *****")
	b.feed(1)
	b.text("TAX INVOICE")
	b.feed(1)
	b.textIf(!r.Name.Empty(), r.Name.String())
	b.textIf(!r.Address.Empty(), r.Address.String())
	b.textIf(!r.TaxRegistrationNo.Empty(), "TRNNO "+r.TaxRegistrationNo.String())
	b.text(cfg.POBox)
	b.text(cfg.City)
	b.feed(1)

	b.left()
	b.textIf(!r.SaleNumber.Empty(), "Sale No: "+r.SaleNumber.String())
	b.textIf(!r.Date.Empty() || !r.Time.Empty(), "Date: "+r.Date.String()+"   Time: "+r.Time.String())
	b.textIf(!r.PosNumber.Empty(), "POS No: "+r.PosNumber.String())
	b.textIf(!r.UserID.Empty(), "User ID: "+r.UserID.String())
	b.feed(1)
	b.text(receiptRule)
	b.text("QTY    ITEM DESCRIPTION           AMOUNT")
	b.text(receiptRule)
	for _, item := range r.Items {
		for _, line := range voidItemRows(item) {
			b.text(line)
		}
	}
	b.text(receiptRule)

	discount := r.DiscountName.String()
	if discount == "" {
		discount = "DISCOUNT"
	}
	for _, t := range []total{
		{discount, r.DiscountTotal},
		{"TOTAL EXCL VAT", r.TotalExclVat},
		{"VAT", r.VatAmount},
		{"TOTAL INCL VAT", r.TotalInclVat},
		{"CHANGE", r.Change},
	} {
		if !suppressed(t.value) {
			b.text(voidTotalRow(t.label, t.value.String()))
		}
	}
	b.text(receiptRule)

	b.feed(1)
	b.center()
	b.text("THANK YOU FOR VISITING US")
	b.feed(1)
	b.text("*** TERMS AND CONDITIONS ***")
	b.feed(1)
	if tnc := plainText(r.TNC.String()); tnc != "" {
		b.text(tnc)
	}
	b.textIf(!r.Website.Empty(), r.Website.String())
	b.textIf(r.Address.Empty(), cfg.DefaultVenue)
	b.text(cfg.Hotline)
	b.feed(cfg.FooterFeed)
	return b.cut()
}

// receiptItemRows formats one item. Quantity and amount go on the first row
// only; continuation rows are indented under the description column.
func receiptItemRows(item ticketformat.Item) []string {
	qty := fit(item.Qty.String(), receiptQtyWidth)
	amount := padStart(item.Amount.String(), receiptAmountWidth)

	parts := wrap(item.Description.String(), receiptDescWidth)
	if len(parts) == 0 {
		return []string{qty + padEnd("", receiptDescWidth) + amount}
	}

	rows := make([]string, 0, len(parts))
	rows = append(rows, qty+padEnd(parts[0], receiptDescWidth)+amount)
	indent := strings.Repeat(" ", receiptQtyWidth)
	for _, p := range parts[1:] {
		rows = append(rows, indent+p)
	}
	return rows
}

func voidItemRows(item ticketformat.Item) []string {
	qty := padEnd(item.Qty.String(), voidQtyWidth)
	amount := padStart(item.Amount.String(), voidAmountWidth)

	parts := wrap(item.Description.String(), voidDescWidth)
	if len(parts) == 0 {
		return []string{qty + padEnd("", voidDescWidth) + amount}
	}

	rows := make([]string, 0, len(parts))
	rows = append(rows, qty+padEnd(parts[0], voidDescWidth)+amount)
	indent := strings.Repeat(" ", voidQtyWidth)
	for _, p := range parts[1:] {
		rows = append(rows, indent+p)
	}
	return rows
}

func receiptTotalRow(label, value string) string {
	return padEnd(label, receiptLabelWidth) + padStart(value, receiptValueWidth)
}

func voidTotalRow(label, value string) string {
	return padEnd(label, voidLabelWidth) + " " + padStart(value, voidValueWidth)
}
