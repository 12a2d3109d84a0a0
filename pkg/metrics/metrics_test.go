package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestMetricsDocumentation(t *testing.T) {
	// Compile-time reference only; the metrics themselves are registered
	// via promauto in pkg/bgg, pkg/pacer and pkg/ingest.
	t.Log("Metrics package documentation verified")
}
