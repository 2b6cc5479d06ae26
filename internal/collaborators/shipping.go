package collaborators

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"lockstep/internal/fulfillment"

	"github.com/google/uuid"
)

// ErrUnknownShipment signals delivery of a shipment this service never
// scheduled.
var ErrUnknownShipment = errors.New("unknown shipment")

// Shipment is one scheduled shipment.
type Shipment struct {
	ShipmentID   uuid.UUID
	ProductItems map[uuid.UUID]int64
	Delivered    bool
}

// ShippingService schedules shipments and publishes ShipmentDelivered when
// one reaches the customer.
type ShippingService struct {
	mu        sync.Mutex
	events    EventPublisher
	shipments map[uuid.UUID]*Shipment
	newID     func() uuid.UUID
}

// NewShippingService constructs a shipping service publishing to events.
func NewShippingService(events EventPublisher) *ShippingService {
	return &ShippingService{
		events:    events,
		shipments: make(map[uuid.UUID]*Shipment),
		newID:     uuid.New,
	}
}

// Register installs the ShipItems handler.
func (s *ShippingService) Register(reg CommandRegistry) {
	reg.Handle(fulfillment.CommandShipItems, func(ctx context.Context, cmd any) (any, error) {
		ship, ok := cmd.(fulfillment.ShipItems)
		if !ok {
			return nil, fmt.Errorf("shipping service: unexpected command %T", cmd)
		}
		return s.Schedule(ship), nil
	})
}

// Schedule records the shipment and returns its id.
func (s *ShippingService) Schedule(cmd fulfillment.ShipItems) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.shipments[id] = &Shipment{
		ShipmentID:   id,
		ProductItems: cmd.ProductItems,
	}
	return id
}

// MarkDelivered marks the shipment delivered and publishes ShipmentDelivered.
func (s *ShippingService) MarkDelivered(ctx context.Context, shipmentID uuid.UUID) error {
	s.mu.Lock()
	shipment, ok := s.shipments[shipmentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownShipment, shipmentID)
	}
	shipment.Delivered = true
	s.mu.Unlock()

	return s.events.Publish(ctx, fulfillment.ShipmentDelivered{ShipmentID: shipmentID})
}

// Lookup returns the shipment, if scheduled.
func (s *ShippingService) Lookup(shipmentID uuid.UUID) (Shipment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shipment, ok := s.shipments[shipmentID]
	if !ok {
		return Shipment{}, false
	}
	return *shipment, true
}
