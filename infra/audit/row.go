package audit

import (
	"encoding/json"
	"fmt"

	coreaudit "github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/scoring"
)

// detail is the JSON column holding the parts of a record that are only read
// back whole.
type detail struct {
	Rules   []model.SelectionRule `json:"rules,omitempty"`
	Ranking []scoring.Result      `json:"ranking,omitempty"`
}

func encodeDetail(r coreaudit.Record) ([]byte, error) {
	b, err := json.Marshal(detail{Rules: r.Rules, Ranking: r.Ranking})
	if err != nil {
		return nil, fmt.Errorf("audit: encode record %s: %w", r.ID, err)
	}
	return b, nil
}

func decodeDetail(b []byte, r *coreaudit.Record) error {
	if len(b) == 0 {
		return nil
	}
	var d detail
	if err := json.Unmarshal(b, &d); err != nil {
		return fmt.Errorf("audit: decode record %s: %w", r.ID, err)
	}
	r.Rules, r.Ranking = d.Rules, d.Ranking
	return nil
}
