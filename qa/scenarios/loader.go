// Package scenarios replays scripted tenders against an in-memory engine on a
// fake clock. Scenarios are YAML files describing the carrier catalog, one
// tender, a list of steps and the expected outcome.
package scenarios

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/tendering/core/catalog"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/tender"
)

//go:embed builtin/*.yaml
var builtin embed.FS

type TenderDef struct {
	Reference      string                `yaml:"reference,omitempty"`
	LoadType       model.LoadType        `yaml:"load_type"`
	ServiceLevels  []model.ServiceLevel  `yaml:"service_levels,omitempty"`
	EstimatedCost  float64               `yaml:"estimated_cost"`
	ResponseWindow time.Duration         `yaml:"response_window"`
	AutoAward      bool                  `yaml:"auto_award"`
	Strategy       model.Strategy        `yaml:"strategy,omitempty"`
	Rules          []model.SelectionRule `yaml:"rules,omitempty"`
}

func (d TenderDef) ToModel() model.TenderSpec {
	rules := d.Rules
	if len(rules) == 0 {
		rules = tender.DefaultRules()
	}
	return model.TenderSpec{
		Reference:      d.Reference,
		LoadType:       d.LoadType,
		ServiceLevels:  d.ServiceLevels,
		EstimatedCost:  d.EstimatedCost,
		ResponseWindow: d.ResponseWindow,
		AutoAward:      d.AutoAward,
		Strategy:       d.Strategy,
		Rules:          rules,
	}
}

type BidDef struct {
	Carrier           string            `yaml:"carrier"`
	Amount            float64           `yaml:"amount"`
	Surcharges        []model.Surcharge `yaml:"surcharges,omitempty"`
	TransitDays       float64           `yaml:"transit_days"`
	CapacityConfirmed bool              `yaml:"capacity_confirmed"`
	ValidFor          time.Duration     `yaml:"valid_for,omitempty"`
	Supersede         bool              `yaml:"supersede,omitempty"`
}

func (b BidDef) ToModel() model.BidPayload {
	return model.BidPayload{
		Amount:            b.Amount,
		Currency:          "USD",
		Surcharges:        b.Surcharges,
		TransitDays:       b.TransitDays,
		CapacityConfirmed: b.CapacityConfirmed,
		ValidFor:          b.ValidFor,
		Supersede:         b.Supersede,
	}
}

type ReviewDef struct {
	Carrier string `yaml:"carrier,omitempty"`
	Reject  bool   `yaml:"reject,omitempty"`
	Actor   string `yaml:"actor"`
	Reason  string `yaml:"reason,omitempty"`
}

// Step is one action of a scenario. Exactly one action field is set. Error
// is the expected error code of the action, empty when it must succeed.
type Step struct {
	Advance  time.Duration `yaml:"advance,omitempty"`
	Bid      *BidDef       `yaml:"bid,omitempty"`
	Withdraw string        `yaml:"withdraw,omitempty"`
	Cancel   string        `yaml:"cancel,omitempty"`
	Deadline bool          `yaml:"deadline,omitempty"`
	Review   *ReviewDef    `yaml:"review,omitempty"`
	Error    string        `yaml:"error,omitempty"`
}

func (s Step) action() string {
	switch {
	case s.Bid != nil:
		return "bid " + s.Bid.Carrier
	case s.Withdraw != "":
		return "withdraw " + s.Withdraw
	case s.Cancel != "":
		return "cancel"
	case s.Deadline:
		return "deadline"
	case s.Review != nil:
		return "review"
	case s.Advance > 0:
		return "advance " + s.Advance.String()
	}
	return ""
}

type Expected struct {
	Status    model.Status   `yaml:"status"`
	Winner    string         `yaml:"winner,omitempty"`
	Amount    float64        `yaml:"amount,omitempty"`
	Ranking   []string       `yaml:"ranking,omitempty"`
	Events    map[string]int `yaml:"events,omitempty"`
	SendError string         `yaml:"send_error,omitempty"`
}

type Scenario struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Catalog     catalog.Snapshot `yaml:"catalog"`
	Tender      TenderDef        `yaml:"tender"`
	Steps       []Step           `yaml:"steps"`
	Expected    Expected         `yaml:"expected"`
}

// Validate rejects scenarios the runner cannot replay.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if err := sc.Catalog.Validate(); err != nil {
		return fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	for i, s := range sc.Steps {
		if s.action() == "" {
			return fmt.Errorf("scenario %s: step %d has no action", sc.Name, i)
		}
	}
	return nil
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Builtin returns the scenarios shipped with the binary, sorted by name.
func Builtin() ([]*Scenario, error) {
	files, err := fs.Glob(builtin, "builtin/*.yaml")
	if err != nil {
		return nil, err
	}
	out := make([]*Scenario, 0, len(files))
	for _, f := range files {
		data, err := builtin.ReadFile(f)
		if err != nil {
			return nil, err
		}
		sc, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(f), err)
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Find returns the built-in scenario with the given name.
func Find(name string) (*Scenario, error) {
	all, err := Builtin()
	if err != nil {
		return nil, err
	}
	for _, sc := range all {
		if sc.Name == name {
			return sc, nil
		}
	}
	return nil, fmt.Errorf("unknown scenario %q", name)
}
