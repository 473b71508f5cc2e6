// Package tenders exposes the tender engine over HTTP. Planners create, send,
// cancel and review tenders; carriers submit and withdraw bids.
package tenders

import (
	"context"

	"github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/scoring"
	"github.com/kilianp07/tendering/core/tender"
)

// Service is the subset of *tender.Manager the handlers call.
type Service interface {
	Create(spec model.TenderSpec) (string, error)
	Send(id string) error
	SubmitBid(id, carrierID string, p model.BidPayload) (model.CarrierBid, error)
	WithdrawBid(id, carrierID string) error
	CancelTender(id, reason string) error
	ManualDecision(id string, d tender.Decision) (model.TenderLoad, error)
	Reevaluate(id string, rules []model.SelectionRule) (scoring.Ranking, error)
	Get(id string) (model.TenderLoad, error)
	List() []model.TenderLoad
	Bids(id string) ([]model.CarrierBid, error)
	Ranking(id string) (scoring.Ranking, error)
	Decisions(ctx context.Context, id string) ([]audit.Record, error)
}

var _ Service = (*tender.Manager)(nil)
