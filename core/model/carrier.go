package model

// CarrierProfile is the read-only slice of carrier master data the engine
// scores against. It is owned by carrier management.
type CarrierProfile struct {
	ID         string         `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name"`
	Rating     float64        `json:"rating" yaml:"rating"`
	OnTimeRate float64        `json:"on_time_rate" yaml:"on_time_rate"`
	Services   []ServiceLevel `json:"services,omitempty" yaml:"services"`
	Active     bool           `json:"active" yaml:"active"`
}

// CarrierPool is a named group of carriers eligible for some lane and service
// combinations. Lower priority numbers are preferred when pools overlap.
type CarrierPool struct {
	Name      string         `json:"name" yaml:"name"`
	Priority  int            `json:"priority" yaml:"priority"`
	LaneTypes []LoadType     `json:"lane_types" yaml:"lane_types"`
	Services  []ServiceLevel `json:"services" yaml:"services"`
	Carriers  []string       `json:"carriers" yaml:"carriers"`
}

// ServesLane reports whether the pool covers the load type.
func (p CarrierPool) ServesLane(t LoadType) bool {
	for _, l := range p.LaneTypes {
		if l == t {
			return true
		}
	}
	return false
}

// ServesAny reports whether the pool offers at least one of the requested
// service levels. An empty request matches every pool.
func (p CarrierPool) ServesAny(levels []ServiceLevel) bool {
	if len(levels) == 0 {
		return true
	}
	for _, want := range levels {
		for _, have := range p.Services {
			if want == have {
				return true
			}
		}
	}
	return false
}
