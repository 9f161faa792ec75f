package protocol

// ProductLine is one requested product within an order. Product IDs are not
// required to be unique within an order; duplicate lines are legal.
type ProductLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderRequest is an inbound customer order. Immutable once received.
type OrderRequest struct {
	OrderID    string        `json:"orderId"`
	CustomerID string        `json:"customerId"`
	Products   []ProductLine `json:"products"`
}
