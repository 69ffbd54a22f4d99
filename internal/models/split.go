package models

// Bill statuses as set by the receipt import pipeline.
const (
	BillStatusProcessing = "PROCESSING"
	BillStatusOpen       = "OPEN"
	BillStatusError      = "ERROR"
)

// Item categories. TAX and TIP only appear in extracted receipt data and are
// folded into the bill instead of being stored as items.
const (
	CategoryFood    = "FOOD"
	CategoryAlcohol = "ALCOHOL"
	CategoryShared  = "SHARED"
	CategoryTax     = "TAX"
	CategoryTip     = "TIP"
)

// Bill represents a receipt being split.
// The client only ever holds a read-only cached copy.
type Bill struct {
	// ID is the unique identifier for the bill (UUID format).
	ID string `json:"id"`

	// Status is PROCESSING, OPEN or ERROR.
	Status string `json:"status"`

	// Currency is the ISO code detected on the receipt (e.g. "THB", "USD").
	Currency string `json:"currency"`

	// TotalAmount is the printed total of the receipt.
	TotalAmount float64 `json:"total_amount"`

	// TaxAmount is prorated across claimants by their share of the item subtotal.
	TaxAmount float64 `json:"tax_amount"`

	// TipAmount is prorated the same way as TaxAmount.
	TipAmount float64 `json:"tip_amount"`

	// ExternalID links the bill to the chat that uploaded it, if any.
	ExternalID string `json:"external_id,omitempty"`

	// CreatedAt is the Unix timestamp when the bill was created.
	CreatedAt int64 `json:"created_at"`
}

// Item represents a single line item on a bill.
type Item struct {
	ID     string `json:"id"`
	BillID string `json:"bill_id"`

	// Name is the item name as printed (translated) on the receipt.
	Name string `json:"name"`

	Quantity int `json:"quantity"`

	// UnitPrice is the line total for this row, not a per-unit price.
	UnitPrice float64 `json:"unit_price"`

	Category string `json:"category"`
}

// Claim records that a user takes part in splitting an item.
// Several claims may reference the same item (shared item) or the same user.
type Claim struct {
	ID       string `json:"id"`
	ItemID   string `json:"item_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`

	// Percentage mirrors 1/split-count as last written by the claim endpoint.
	// Allocation never reads it; the claim count is authoritative.
	Percentage float64 `json:"percentage"`

	CreatedAt int64 `json:"created_at"`
}

// Totals is one user's derived share of a bill.
// No rounding is applied; rounding is a display concern.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Tip      float64 `json:"tip"`
	Total    float64 `json:"total"`
}
