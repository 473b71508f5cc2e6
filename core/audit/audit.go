// Package audit keeps the decision log of tenders: every award, review,
// rejection, expiry and cancellation together with the ranking it was based
// on. Stores are append-only.
package audit

import (
	"context"
	"time"

	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/scoring"
)

// Record is one decision.
type Record struct {
	ID            string                `json:"id"`
	TenderID      string                `json:"tender_id"`
	Outcome       model.Status          `json:"outcome"`
	Reason        string                `json:"reason,omitempty"`
	Actor         string                `json:"actor,omitempty"`
	Automatic     bool                  `json:"automatic"`
	BidID         string                `json:"bid_id,omitempty"`
	CarrierID     string                `json:"carrier_id,omitempty"`
	Amount        float64               `json:"amount,omitempty"`
	Score         float64               `json:"score,omitempty"`
	Strategy      model.Strategy        `json:"strategy,omitempty"`
	Rules         []model.SelectionRule `json:"rules,omitempty"`
	Ranking       []scoring.Result      `json:"ranking,omitempty"`
	LedgerVersion uint64                `json:"ledger_version"`
	AuditRequired bool                  `json:"audit_required,omitempty"`
	At            time.Time             `json:"at"`
}

// Store persists decision records.
type Store interface {
	Append(ctx context.Context, r Record) error
	List(ctx context.Context, tenderID string) ([]Record, error)
}
