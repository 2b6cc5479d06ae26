package fulfillment

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status captures the lifecycle state of a saga instance.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDenied    Status = "denied"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further events may mutate the instance.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDenied || s == StatusFailed
}

// Association keys recognized by the instance store.
const (
	AssocOrderID    = "orderId"
	AssocInvoiceID  = "invoiceId"
	AssocShipmentID = "shipmentId"
)

// Association is a correlation pair routing events to an instance.
type Association struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ErrIncompleteInstance signals a handler running against an instance that is
// missing state it must already have. This means correlation matched an
// instance it should not have; the handler aborts rather than proceed.
var ErrIncompleteInstance = errors.New("saga instance is missing required state")

// Instance is the unit of state for one order's fulfillment.
type Instance struct {
	OrderID      uuid.UUID           `json:"order_id"`
	ProductItems map[uuid.UUID]int64 `json:"product_items,omitempty"`
	TotalPrice   decimal.Decimal     `json:"total_price"`
	Paid         bool                `json:"paid"`
	InvoiceID    *uuid.UUID          `json:"invoice_id,omitempty"`
	Delivered    bool                `json:"delivered"`
	ShipmentID   *uuid.UUID          `json:"shipment_id,omitempty"`
	Associations []Association       `json:"associations"`
	Status       Status              `json:"status"`
}

// NewInstance constructs an active instance associated by its order id.
func NewInstance(orderID uuid.UUID) *Instance {
	return &Instance{
		OrderID:      orderID,
		Associations: []Association{{Key: AssocOrderID, Value: orderID.String()}},
		Status:       StatusActive,
	}
}

// Associate records a correlation pair. Existing pairs are kept as-is;
// associations only grow.
func (i *Instance) Associate(key, value string) {
	for _, a := range i.Associations {
		if a.Key == key && a.Value == value {
			return
		}
	}
	i.Associations = append(i.Associations, Association{Key: key, Value: value})
}

// HasAssociation reports whether the pair routes to this instance.
func (i *Instance) HasAssociation(key, value string) bool {
	for _, a := range i.Associations {
		if a.Key == key && a.Value == value {
			return true
		}
	}
	return false
}

// placed reports whether the creation handler has recorded the order payload.
func (i *Instance) placed() bool {
	return i.ProductItems != nil
}

// completionReady reports whether the completion gate is satisfied.
func (i *Instance) completionReady() bool {
	return i.Paid && i.Delivered
}

// Clone returns an independent copy of the instance.
func (i *Instance) Clone() *Instance {
	out := *i
	if i.ProductItems != nil {
		out.ProductItems = make(map[uuid.UUID]int64, len(i.ProductItems))
		for id, qty := range i.ProductItems {
			out.ProductItems[id] = qty
		}
	}
	if i.InvoiceID != nil {
		id := *i.InvoiceID
		out.InvoiceID = &id
	}
	if i.ShipmentID != nil {
		id := *i.ShipmentID
		out.ShipmentID = &id
	}
	out.Associations = append([]Association(nil), i.Associations...)
	return &out
}
