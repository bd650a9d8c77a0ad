package auction

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	sold       metric.Int64Counter
	unsold     metric.Int64Counter
	saleAmount metric.Int64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter("github.com/jensholdgaard/player-auction/internal/auction")

	sold, err := meter.Int64Counter("auction.players.sold",
		metric.WithDescription("Players sold to a team."))
	if err != nil {
		return nil, fmt.Errorf("creating sold counter: %w", err)
	}
	unsold, err := meter.Int64Counter("auction.players.unsold",
		metric.WithDescription("Players marked unsold, by resulting status."))
	if err != nil {
		return nil, fmt.Errorf("creating unsold counter: %w", err)
	}
	saleAmount, err := meter.Int64Histogram("auction.sale.amount",
		metric.WithDescription("Winning bid amount of each sale."),
		metric.WithUnit("{currency}"))
	if err != nil {
		return nil, fmt.Errorf("creating sale amount histogram: %w", err)
	}

	return &metrics{sold: sold, unsold: unsold, saleAmount: saleAmount}, nil
}
