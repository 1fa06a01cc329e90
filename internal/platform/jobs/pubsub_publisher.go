package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

// EventOrderConfirmed is the eventType attribute on confirmation messages.
const EventOrderConfirmed = "order.confirmed"

// OrderConfirmedMessage is the JSON payload published for each finalized order.
// Money values are decimal strings.
type OrderConfirmedMessage struct {
	OrderNumber string             `json:"orderNumber"`
	CustomerID  string             `json:"customerId"`
	Email       string             `json:"email,omitempty"`
	Status      string             `json:"status"`
	Currency    string             `json:"currency"`
	Items       []OrderMessageLine `json:"items"`
	Subtotal    string             `json:"subtotal"`
	Shipping    string             `json:"shipping"`
	Tax         string             `json:"tax"`
	Total       string             `json:"total"`
	Country     string             `json:"country"`
	OrderDate   time.Time          `json:"orderDate"`
}

// OrderMessageLine is one purchased product in OrderConfirmedMessage.
type OrderMessageLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

// NewOrderConfirmedMessage flattens an order into its event payload.
func NewOrderConfirmedMessage(order domain.Order) OrderConfirmedMessage {
	items := make([]OrderMessageLine, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, OrderMessageLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Quantity:  line.Quantity,
		})
	}
	return OrderConfirmedMessage{
		OrderNumber: order.Number,
		CustomerID:  order.CustomerID,
		Email:       order.Shipping.Email,
		Status:      string(order.Status),
		Currency:    order.Currency,
		Items:       items,
		Subtotal:    order.Totals.Subtotal.StringFixed(2),
		Shipping:    order.Totals.Shipping.StringFixed(2),
		Tax:         order.Totals.Tax.StringFixed(2),
		Total:       order.Totals.Total.StringFixed(2),
		Country:     order.Shipping.Address.Country,
		OrderDate:   order.OrderDate.UTC(),
	}
}

// PubSubOrderPublisher publishes order confirmations to a Pub/Sub topic.
type PubSubOrderPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderPublisher constructs a Pub/Sub backed confirmation sink.
func NewPubSubOrderPublisher(topic *pubsub.Topic) (*PubSubOrderPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubOrderPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// OrderConfirmed publishes the order and waits for the server ack.
func (p *PubSubOrderPublisher) OrderConfirmed(ctx context.Context, order domain.Order) error {
	_, err := p.Publish(ctx, order)
	return err
}

// Publish enqueues the confirmation message and returns the server message id.
func (p *PubSubOrderPublisher) Publish(ctx context.Context, order domain.Order) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order publisher: not initialised")
	}

	data, err := p.marshal(NewOrderConfirmedMessage(order))
	if err != nil {
		return "", fmt.Errorf("marshal order confirmation: %w", err)
	}

	attrs := map[string]string{"eventType": EventOrderConfirmed}
	setAttr(attrs, "orderNumber", order.Number)
	setAttr(attrs, "customerId", order.CustomerID)
	setAttr(attrs, "country", order.Shipping.Address.Country)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order confirmation: %w", err)
	}
	return id, nil
}

// Ping checks that the topic exists.
func (p *PubSubOrderPublisher) Ping(ctx context.Context) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order publisher: not initialised")
	}
	ok, err := p.topic.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pubsub topic %s does not exist", p.topic.ID())
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubOrderPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
