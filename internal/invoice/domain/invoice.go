package domain

import "fmt"

// DateLayout is how order timestamps are shown on an invoice.
const DateLayout = "2006-01-02 15:04"

// Party is one side of an invoice. Lines holds the postal address.
type Party struct {
	Name  string
	Email string
	Lines []string
	VATID string
}

// Line is one rendered invoice row. Money fields are preformatted.
type Line struct {
	Quantity  int
	Name      string
	UnitPrice string
	Total     string
}

// View is everything the invoice template needs. It carries no behaviour.
type View struct {
	Number     int64
	Date       string
	Currency   string
	Issuer     Party
	Buyer      Party
	Lines      []Line
	GrandTotal string
}

// Message is the payload accepted by the email service's /invoicing endpoint.
type Message struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	PDFBase64 string `json:"pdfBase64"`
}

func Subject(invoiceID int64) string {
	return fmt.Sprintf("Invoice #%d", invoiceID)
}

// PDFDataURI wraps a base64 encoded PDF for inline transport.
func PDFDataURI(b64 string) string {
	return "data:application/pdf;base64," + b64
}
