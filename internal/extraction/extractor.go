package extraction

import "errors"

// BillRecord is the structured data extracted from one bill or invoice
type BillRecord struct {
	InvoiceNumber string     `json:"invoiceNumber"`
	InvoiceDate   string     `json:"invoiceDate"`
	Seller        string     `json:"seller"`
	Customer      string     `json:"customer"`
	Currency      string     `json:"currency"`
	GrandTotal    float64    `json:"grandTotal"`
	Items         []LineItem `json:"items"`
}

// LineItem is one purchased item row on a bill, in document order
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount"`
}

// Extraction failure classes. Callers use errors.Is to distinguish them;
// all carry the underlying cause via %w wrapping.
var (
	// ErrServiceUnavailable means the model call itself failed
	ErrServiceUnavailable = errors.New("extraction service unavailable")
	// ErrMalformedResponse means the model response was not valid JSON
	ErrMalformedResponse = errors.New("malformed extraction response")
	// ErrSchemaViolation means the response JSON did not match the bill schema
	ErrSchemaViolation = errors.New("extraction response violates bill schema")
)

// Extractor defines the interface for structured bill extraction
type Extractor interface {
	// Extract analyzes a bill image and returns the structured record
	Extract(imageData []byte, contentType string) (*BillRecord, error)
	// Close closes the extractor and releases resources
	Close() error
}

// billExtractionPrompt is the shared prompt used by all LLM providers
const billExtractionPrompt = `You are an expert bill parser. Analyze the uploaded bill or invoice image and extract all the required information. Strictly adhere to the provided JSON schema.

Guidance:
- "invoiceNumber" is the unique invoice or bill number printed on the document.
- "invoiceDate" is the date the bill was issued, as printed (keep the original format).
- "seller" is the company or person who issued the bill.
- "customer" is who the bill is addressed to (often labeled "Bill To").
- "grandTotal" is the final total amount paid, as a number.
- "currency" is the currency of the grand total (e.g. USD, EUR, INR).
- "items" lists every purchased product or service, in the order it appears on the document, each with description, quantity, unitPrice and amount.
- If a value is not present on the document, use an empty string for strings and 0 for numbers.`
