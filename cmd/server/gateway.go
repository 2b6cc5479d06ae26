package main

import (
	"context"

	"lockstep/internal/fulfillment"
	"lockstep/internal/observability"
)

// instrumentedGateway measures every command the saga issues.
type instrumentedGateway struct {
	base    fulfillment.CommandGateway
	metrics *observability.Metrics
}

func newInstrumentedGateway(base fulfillment.CommandGateway, metrics *observability.Metrics) *instrumentedGateway {
	return &instrumentedGateway{base: base, metrics: metrics}
}

func (g *instrumentedGateway) Send(ctx context.Context, cmd any) (any, error) {
	kind := "unknown"
	if named, ok := cmd.(interface{ MessageName() string }); ok {
		kind = named.MessageName()
	}
	span := g.metrics.Start(kind)
	reply, err := g.base.Send(ctx, cmd)
	span.End(err)
	return reply, err
}
