package view

import (
	"context"
	"log/slog"

	"github.com/mrops-br/shopfront/internal/app/service"
	"go.opentelemetry.io/otel/metric"
)

// Badge follows the cart service's change notifications. Pages render the
// badge from the stored cart; Badge records every published count so badge
// movement shows up in metrics and debug logs. It keeps no per-session
// state.
type Badge struct {
	counts metric.Int64Histogram
	logger *slog.Logger
}

func NewBadge(meter metric.Meter, logger *slog.Logger) *Badge {
	counts, _ := meter.Int64Histogram(
		"cart.badge.count",
		metric.WithDescription("Cart item count published after each cart change"),
		metric.WithUnit("{item}"),
	)
	return &Badge{counts: counts, logger: logger}
}

// OnCartChanged is a service.CartListener
func (b *Badge) OnCartChanged(ctx context.Context, e service.CartChanged) {
	b.counts.Record(ctx, int64(e.Count))
	b.logger.DebugContext(ctx, "Cart badge updated",
		slog.Int("count", e.Count),
	)
}
