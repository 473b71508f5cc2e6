package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BidStatus is the status of a carrier bid. Bids only ever change status;
// they are never deleted.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
	BidExpired  BidStatus = "expired"
)

// Surcharge is an accessorial charge added to the base amount.
type Surcharge struct {
	Code   string  `json:"code" validate:"required"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

// BidPayload is what a carrier submits.
type BidPayload struct {
	Amount            float64       `json:"amount" validate:"gt=0"`
	Currency          string        `json:"currency,omitempty" validate:"omitempty,len=3"`
	Surcharges        []Surcharge   `json:"surcharges,omitempty" validate:"dive"`
	TransitDays       float64       `json:"transit_days" validate:"gt=0"`
	ServiceLevel      ServiceLevel  `json:"service_level,omitempty"`
	CapacityConfirmed bool          `json:"capacity_confirmed"`
	EquipmentType     string        `json:"equipment_type,omitempty"`
	ValidFor          time.Duration `json:"valid_for,omitempty" validate:"gte=0"`
	ExpiresAt         time.Time     `json:"expires_at,omitempty"`
	Supersede         bool          `json:"supersede,omitempty"`
}

// Validate checks the payload without relying on struct tags so the ledger can
// be used without the HTTP layer.
func (p BidPayload) Validate() error {
	if p.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if p.TransitDays <= 0 {
		return fmt.Errorf("transit days must be positive")
	}
	if p.ValidFor < 0 {
		return fmt.Errorf("valid_for must not be negative")
	}
	if p.Currency != "" && len(p.Currency) != 3 {
		return fmt.Errorf("currency %q must be a 3-letter code", p.Currency)
	}
	for i, s := range p.Surcharges {
		if s.Code == "" {
			return fmt.Errorf("surcharge %d: code is required", i)
		}
		if s.Amount < 0 {
			return fmt.Errorf("surcharge %s must not be negative", s.Code)
		}
	}
	return nil
}

// CarrierBid is one carrier offer against a tender.
type CarrierBid struct {
	ID                string       `json:"id"`
	TenderID          string       `json:"tender_id"`
	CarrierID         string       `json:"carrier_id"`
	Amount            float64      `json:"amount"`
	Currency          string       `json:"currency,omitempty"`
	Surcharges        []Surcharge  `json:"surcharges,omitempty"`
	TotalCost         float64      `json:"total_cost"`
	TransitDays       float64      `json:"transit_days"`
	ServiceLevel      ServiceLevel `json:"service_level,omitempty"`
	CapacityConfirmed bool         `json:"capacity_confirmed"`
	EquipmentType     string       `json:"equipment_type,omitempty"`
	SubmittedAt       time.Time    `json:"submitted_at"`
	ExpiresAt         time.Time    `json:"expires_at,omitempty"`
	Status            BidStatus    `json:"status"`
	Seq               int          `json:"seq"`
}

// NewCarrierBid builds a Pending bid from a payload. The total cost is the
// base amount plus every surcharge, computed in decimal and rounded to cents.
func NewCarrierBid(id, tenderID, carrierID string, p BidPayload, now time.Time) CarrierBid {
	expires := p.ExpiresAt
	if expires.IsZero() && p.ValidFor > 0 {
		expires = now.Add(p.ValidFor)
	}
	return CarrierBid{
		ID:                id,
		TenderID:          tenderID,
		CarrierID:         carrierID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Surcharges:        append([]Surcharge(nil), p.Surcharges...),
		TotalCost:         TotalCost(p.Amount, p.Surcharges),
		TransitDays:       p.TransitDays,
		ServiceLevel:      p.ServiceLevel,
		CapacityConfirmed: p.CapacityConfirmed,
		EquipmentType:     p.EquipmentType,
		SubmittedAt:       now,
		ExpiresAt:         expires,
		Status:            BidPending,
	}
}

// TotalCost returns amount plus surcharges rounded to two decimals.
func TotalCost(amount float64, surcharges []Surcharge) float64 {
	total := decimal.NewFromFloat(amount)
	for _, s := range surcharges {
		total = total.Add(decimal.NewFromFloat(s.Amount))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// ExpiredAt reports whether the bid's own validity ended at or before t.
func (b CarrierBid) ExpiredAt(t time.Time) bool {
	return !b.ExpiresAt.IsZero() && !t.Before(b.ExpiresAt)
}

// Active reports whether the bid is still Pending.
func (b CarrierBid) Active() bool { return b.Status == BidPending }
