package contract

// Product is one inventory record as read from the record store. Stock and
// Price are pointers because the remote database allows either to be unset.
type Product struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Variant  string   `json:"variant"`
	Stock    *float64 `json:"stock"`
	Unit     string   `json:"unit"`
	Price    *float64 `json:"price"`
}

// Sale describes one completed sale to append to the sales log. The record
// store computes the total as Quantity * UnitPrice when writing.
type Sale struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	SoldBy      string  `json:"sold_by"`
}

// ToolResult is the outcome of executing one tool call. Result and Error are
// mutually exclusive; Error is plain text the model can read and act on.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
