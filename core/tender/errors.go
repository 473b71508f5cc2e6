package tender

import (
	"errors"
	"fmt"

	"github.com/kilianp07/tendering/core/ledger"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/pool"
)

var (
	ErrTenderNotFound       = errors.New("tender not found")
	ErrTenderAlreadyDecided = errors.New("tender already decided")
	ErrNoEnabledRules       = errors.New("no enabled selection rules")
	ErrCarrierNotEligible   = errors.New("carrier not eligible for tender")

	ErrValidation         = ledger.ErrValidation
	ErrTenderClosed       = ledger.ErrTenderClosed
	ErrDuplicateActiveBid = ledger.ErrDuplicateActiveBid
	ErrBidNotFound        = ledger.ErrBidNotFound
	ErrNoEligibleCarriers = pool.ErrNoEligibleCarriers
	ErrInvalidTransition  = model.ErrInvalidTransition
)

// stateErr explains why a tender refuses bids or decisions in its current
// status.
func stateErr(t model.TenderLoad) error {
	switch s := t.Status(); s {
	case model.StatusAwarded, model.StatusRejected:
		return fmt.Errorf("%w: tender %s is %s", ErrTenderAlreadyDecided, t.ID, s)
	default:
		return fmt.Errorf("%w: tender %s is %s", ErrTenderClosed, t.ID, s)
	}
}

var codes = []struct {
	target error
	code   string
}{
	{ErrTenderNotFound, "tender_not_found"},
	{ErrBidNotFound, "bid_not_found"},
	{ErrValidation, "validation"},
	{ErrTenderAlreadyDecided, "tender_already_decided"},
	{ErrTenderClosed, "tender_closed"},
	{ErrDuplicateActiveBid, "duplicate_active_bid"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrCarrierNotEligible, "carrier_not_eligible"},
	{ErrNoEligibleCarriers, "no_eligible_carriers"},
	{ErrNoEnabledRules, "no_enabled_rules"},
}

// ErrorCode returns the stable snake_case code of an engine error. Nil maps
// to the empty string and unknown errors to "internal".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return "internal"
}
