// Package plugins links every built-in backend into the binary. Importing it
// runs the init functions that register metrics sinks, event publishers and
// audit stores with their core registries.
package plugins

import (
	"github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/core/notify"

	_ "github.com/kilianp07/tendering/infra/audit"
	_ "github.com/kilianp07/tendering/infra/metrics"
	_ "github.com/kilianp07/tendering/infra/mqtt"
	_ "github.com/kilianp07/tendering/infra/webhook"
)

// Kind names a pluggable concern as it appears in the configuration.
type Kind string

const (
	MetricsSinks Kind = "metrics.sinks"
	Publishers   Kind = "notify.publishers"
	AuditStores  Kind = "audit.store"
)

// Available returns the registered type names per concern.
func Available() map[Kind][]string {
	return map[Kind][]string{
		MetricsSinks: metrics.SinkTypes(),
		Publishers:   notify.PublisherTypes(),
		AuditStores:  audit.StoreTypes(),
	}
}
