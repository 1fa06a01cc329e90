package jobs

import (
	"context"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

// LogSink records confirmations through the event logger. It is used when no
// topic is configured.
type LogSink struct {
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewLogSink constructs a LogSink. A nil logger discards events.
func NewLogSink(logger func(ctx context.Context, event string, fields map[string]any)) *LogSink {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &LogSink{logger: logger}
}

// OrderConfirmed logs the confirmation summary.
func (s *LogSink) OrderConfirmed(ctx context.Context, order domain.Order) error {
	msg := NewOrderConfirmedMessage(order)
	s.logger(ctx, EventOrderConfirmed, map[string]any{
		"orderNumber": msg.OrderNumber,
		"customerId":  msg.CustomerID,
		"itemCount":   order.ItemCount(),
		"total":       msg.Total,
		"currency":    msg.Currency,
	})
	return nil
}
