// Package protocol defines the wire messages exchanged between the
// marketplace coordinator and sellers: a small tagged union encoded as
// self-describing JSON with a messageType discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the wire message variants.
type Kind string

const (
	KindReserveRequest  Kind = "ReserveRequest"
	KindReserveResponse Kind = "ReserveResponse"
	KindCancelRequest   Kind = "CancelRequest"
	KindCancelResponse  Kind = "CancelResponse"
	KindConfirmRequest  Kind = "ConfirmRequest"
	KindUnknown         Kind = "Unknown"
)

// Status values carried by seller responses.
const (
	StatusReserved  = "RESERVED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Rejection reasons with coordinator-side meaning. ReasonNotCarried is the
// only failover-eligible business rejection; ReasonTimeout is synthesized by
// the coordinator when every candidate seller is exhausted.
const (
	ReasonNotCarried  = "product not carried"
	ReasonUnavailable = "product temporarily unavailable"
	ReasonNoStock     = "insufficient stock"
	ReasonTimeout     = "Timeout"
)

// Message is the closed set of wire messages. Callers switch on the concrete
// type (or Kind) before touching fields.
type Message interface {
	Kind() Kind
}

// ReserveRequest asks a seller to reserve quantity units of a product.
type ReserveRequest struct {
	OrderID       string
	ProductID     string
	Quantity      int
	MarketplaceID string
}

func (ReserveRequest) Kind() Kind { return KindReserveRequest }

// ReserveResponse is a seller's definitive answer to a ReserveRequest.
type ReserveResponse struct {
	OrderID   string
	ProductID string
	SellerID  string
	Status    string
	Reason    string
}

func (ReserveResponse) Kind() Kind { return KindReserveResponse }

// Reserved reports whether the reservation was granted.
func (r ReserveResponse) Reserved() bool { return r.Status == StatusReserved }

// CancelRequest reverses a prior reservation (saga compensation).
type CancelRequest struct {
	OrderID   string
	ProductID string
	SellerID  string
}

func (CancelRequest) Kind() Kind { return KindCancelRequest }

// CancelResponse acknowledges a CancelRequest.
type CancelResponse struct {
	OrderID   string
	ProductID string
	SellerID  string
	Status    string
}

func (CancelResponse) Kind() Kind { return KindCancelResponse }

// ConfirmRequest finalizes a reservation after the whole order succeeded.
// It is fire-and-forget; sellers send no reply.
type ConfirmRequest struct {
	OrderID   string
	ProductID string
	SellerID  string
}

func (ConfirmRequest) Kind() Kind { return KindConfirmRequest }

// Unknown is returned by Decode for malformed or unrecognized input.
// Decoding is total: bad bytes become an Unknown value, never an error that
// can take down a receive loop.
type Unknown struct {
	Raw string
	Err error
}

func (Unknown) Kind() Kind { return KindUnknown }

// envelope is the flat wire form shared by all message kinds.
type envelope struct {
	Type          Kind   `json:"messageType"`
	OrderID       string `json:"orderId,omitempty"`
	ProductID     string `json:"productId,omitempty"`
	SellerID      string `json:"sellerId,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	MarketplaceID string `json:"marketplaceId,omitempty"`
	Status        string `json:"status,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Encode serializes a message to its wire form.
func Encode(msg Message) ([]byte, error) {
	var env envelope
	switch m := msg.(type) {
	case ReserveRequest:
		env = envelope{Type: KindReserveRequest, OrderID: m.OrderID, ProductID: m.ProductID, Quantity: m.Quantity, MarketplaceID: m.MarketplaceID}
	case ReserveResponse:
		env = envelope{Type: KindReserveResponse, OrderID: m.OrderID, ProductID: m.ProductID, SellerID: m.SellerID, Status: m.Status, Reason: m.Reason}
	case CancelRequest:
		env = envelope{Type: KindCancelRequest, OrderID: m.OrderID, ProductID: m.ProductID, SellerID: m.SellerID}
	case CancelResponse:
		env = envelope{Type: KindCancelResponse, OrderID: m.OrderID, ProductID: m.ProductID, SellerID: m.SellerID, Status: m.Status}
	case ConfirmRequest:
		env = envelope{Type: KindConfirmRequest, OrderID: m.OrderID, ProductID: m.ProductID, SellerID: m.SellerID}
	default:
		return nil, fmt.Errorf("encode: unsupported message kind %q", msg.Kind())
	}
	return json.Marshal(env)
}

// Decode parses a wire message. Malformed JSON or an unrecognized
// discriminator yields an Unknown message carrying the raw input.
func Decode(data []byte) Message {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Unknown{Raw: string(data), Err: err}
	}
	switch env.Type {
	case KindReserveRequest:
		return ReserveRequest{OrderID: env.OrderID, ProductID: env.ProductID, Quantity: env.Quantity, MarketplaceID: env.MarketplaceID}
	case KindReserveResponse:
		return ReserveResponse{OrderID: env.OrderID, ProductID: env.ProductID, SellerID: env.SellerID, Status: env.Status, Reason: env.Reason}
	case KindCancelRequest:
		return CancelRequest{OrderID: env.OrderID, ProductID: env.ProductID, SellerID: env.SellerID}
	case KindCancelResponse:
		return CancelResponse{OrderID: env.OrderID, ProductID: env.ProductID, SellerID: env.SellerID, Status: env.Status}
	case KindConfirmRequest:
		return ConfirmRequest{OrderID: env.OrderID, ProductID: env.ProductID, SellerID: env.SellerID}
	default:
		return Unknown{Raw: string(data), Err: fmt.Errorf("unrecognized messageType %q", env.Type)}
	}
}
