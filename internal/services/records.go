package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/domain"
)

const (
	cartSnapshotVersion = 1
	orderRecordVersion  = 1
)

var errCorruptSnapshot = errors.New("corrupt snapshot")

type cartSnapshot struct {
	Version   int              `json:"version"`
	CartID    string           `json:"cartId"`
	Lines     []cartLineRecord `json:"lines"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type cartLineRecord struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Quantity       int             `json:"quantity"`
	Category       string          `json:"category,omitempty"`
	LimitedEdition bool            `json:"isLimitedEdition,omitempty"`
	AddedAt        time.Time       `json:"addedAt"`
}

func encodeCartSnapshot(id string, lines []domain.CartLine, updatedAt time.Time) ([]byte, error) {
	snap := cartSnapshot{
		Version:   cartSnapshotVersion,
		CartID:    id,
		Lines:     lineRecords(lines),
		UpdatedAt: updatedAt,
	}
	return json.Marshal(snap)
}

// decodeCartSnapshot rejects snapshots that would violate the ledger
// invariants rather than repairing them.
func decodeCartSnapshot(raw []byte) (cartSnapshot, []domain.CartLine, error) {
	var snap cartSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return cartSnapshot{}, nil, fmt.Errorf("%w: %v", errCorruptSnapshot, err)
	}
	if snap.Version > cartSnapshotVersion {
		return cartSnapshot{}, nil, fmt.Errorf("%w: unsupported version %d", errCorruptSnapshot, snap.Version)
	}
	lines := make([]domain.CartLine, 0, len(snap.Lines))
	seen := make(map[string]struct{}, len(snap.Lines))
	for idx, rec := range snap.Lines {
		id := strings.TrimSpace(rec.ProductID)
		switch {
		case id == "":
			return cartSnapshot{}, nil, fmt.Errorf("%w: line %d has no product id", errCorruptSnapshot, idx)
		case rec.Quantity < 1:
			return cartSnapshot{}, nil, fmt.Errorf("%w: line %d has quantity %d", errCorruptSnapshot, idx, rec.Quantity)
		case rec.UnitPrice.IsNegative():
			return cartSnapshot{}, nil, fmt.Errorf("%w: line %d has negative price", errCorruptSnapshot, idx)
		}
		if _, dup := seen[id]; dup {
			return cartSnapshot{}, nil, fmt.Errorf("%w: duplicate product %s", errCorruptSnapshot, id)
		}
		seen[id] = struct{}{}
		lines = append(lines, lineFromRecord(rec))
	}
	return snap, lines, nil
}

func lineRecords(lines []domain.CartLine) []cartLineRecord {
	records := make([]cartLineRecord, 0, len(lines))
	for _, line := range lines {
		records = append(records, cartLineRecord{
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPrice:      line.UnitPrice,
			Quantity:       line.Quantity,
			Category:       line.Category,
			LimitedEdition: line.LimitedEdition,
			AddedAt:        line.AddedAt.UTC(),
		})
	}
	return records
}

func lineFromRecord(rec cartLineRecord) domain.CartLine {
	return domain.CartLine{
		ProductID:      strings.TrimSpace(rec.ProductID),
		Name:           rec.Name,
		UnitPrice:      rec.UnitPrice,
		Quantity:       rec.Quantity,
		Category:       rec.Category,
		LimitedEdition: rec.LimitedEdition,
		AddedAt:        rec.AddedAt.UTC(),
	}
}

type orderRecord struct {
	Version       int                 `json:"version"`
	OrderNumber   string              `json:"orderNumber"`
	CustomerID    string              `json:"customerId"`
	Items         []cartLineRecord    `json:"items"`
	Shipping      shippingRecord      `json:"shippingInfo"`
	Billing       billingRecord       `json:"billingInfo"`
	PaymentMethod paymentMethodRecord `json:"paymentMethod"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	ShippingCost  decimal.Decimal     `json:"shippingCost"`
	Tax           decimal.Decimal     `json:"tax"`
	Total         decimal.Decimal     `json:"total"`
	Currency      string              `json:"currency"`
	Notes         string              `json:"notes,omitempty"`
	OrderDate     time.Time           `json:"orderDate"`
	Status        string              `json:"status"`
}

type addressRecord struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type shippingRecord struct {
	FirstName string        `json:"firstName"`
	LastName  string        `json:"lastName"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone,omitempty"`
	Address   addressRecord `json:"address"`
}

type billingRecord struct {
	SameAsShipping bool          `json:"sameAsShipping"`
	Name           string        `json:"name,omitempty"`
	Email          string        `json:"email,omitempty"`
	Address        addressRecord `json:"address"`
}

type paymentMethodRecord struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"expMonth,omitempty"`
	ExpYear  int    `json:"expYear,omitempty"`
}

func encodeOrder(order domain.Order) ([]byte, error) {
	rec := orderRecord{
		Version:     orderRecordVersion,
		OrderNumber: order.Number,
		CustomerID:  order.CustomerID,
		Items:       lineRecords(order.Items),
		Shipping: shippingRecord{
			FirstName: order.Shipping.FirstName,
			LastName:  order.Shipping.LastName,
			Email:     order.Shipping.Email,
			Phone:     order.Shipping.Phone,
			Address:   addressToRecord(order.Shipping.Address),
		},
		Billing: billingRecord{
			SameAsShipping: order.Billing.SameAsShipping,
			Name:           order.Billing.Name,
			Email:          order.Billing.Email,
			Address:        addressToRecord(order.Billing.Address),
		},
		PaymentMethod: paymentMethodRecord(order.PaymentMethod),
		Subtotal:      order.Totals.Subtotal,
		ShippingCost:  order.Totals.Shipping,
		Tax:           order.Totals.Tax,
		Total:         order.Totals.Total,
		Currency:      order.Currency,
		Notes:         order.Notes,
		OrderDate:     order.OrderDate.UTC(),
		Status:        string(order.Status),
	}
	return json.Marshal(rec)
}

func decodeOrder(raw []byte) (domain.Order, error) {
	var rec orderRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", errCorruptSnapshot, err)
	}
	if strings.TrimSpace(rec.OrderNumber) == "" {
		return domain.Order{}, fmt.Errorf("%w: order number missing", errCorruptSnapshot)
	}
	items := make([]domain.CartLine, 0, len(rec.Items))
	for _, item := range rec.Items {
		items = append(items, lineFromRecord(item))
	}
	return domain.Order{
		Number:     rec.OrderNumber,
		CustomerID: rec.CustomerID,
		Items:      items,
		Shipping: domain.ShippingInfo{
			FirstName: rec.Shipping.FirstName,
			LastName:  rec.Shipping.LastName,
			Email:     rec.Shipping.Email,
			Phone:     rec.Shipping.Phone,
			Address:   domain.Address(rec.Shipping.Address),
		},
		Billing: domain.BillingInfo{
			SameAsShipping: rec.Billing.SameAsShipping,
			Name:           rec.Billing.Name,
			Email:          rec.Billing.Email,
			Address:        domain.Address(rec.Billing.Address),
		},
		PaymentMethod: domain.PaymentMethodRef(rec.PaymentMethod),
		Totals: domain.Totals{
			Subtotal: rec.Subtotal,
			Shipping: rec.ShippingCost,
			Tax:      rec.Tax,
			Total:    rec.Total,
		},
		Currency:  rec.Currency,
		Notes:     rec.Notes,
		OrderDate: rec.OrderDate.UTC(),
		Status:    domain.OrderStatus(rec.Status),
	}, nil
}

func addressToRecord(addr domain.Address) addressRecord {
	return addressRecord(addr)
}
