package layout

// Config holds the fixed text printed on every document
type Config struct {
	Company           string `yaml:"company" json:"company"`
	TaxRegistrationNo string `yaml:"tax_registration_no" json:"tax_registration_no"`
	POBox             string `yaml:"po_box" json:"po_box"`
	City              string `yaml:"city" json:"city"`
	DefaultVenue      string `yaml:"default_venue" json:"default_venue"`
	Hotline           string `yaml:"hotline" json:"hotline"`
	PrinterModel      string `yaml:"printer_model" json:"printer_model"`
	FooterFeed        int    `yaml:"footer_feed" json:"footer_feed"`
	TicketFooterNote  string `yaml:"ticket_footer_note" json:"ticket_footer_note"`
}

// DefaultConfig returns the venue defaults
func DefaultConfig() Config {
	return Config{
		Company:           "EMAAR ENTERTAINMENT LLC",
		TaxRegistrationNo: "100067521300003",
		POBox:             "PO BOX NO 9440",
		City:              "DUBAI U.A.E",
		DefaultVenue:      "At The Dubai Mall",
		Hotline:           "800 382246255",
		PrinterModel:      "TM-T88",
		FooterFeed:        2,
		TicketFooterNote:  "Please go to the counter to get the ticket.",
	}
}
