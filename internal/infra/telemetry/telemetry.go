package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nexosupport/access-service/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	checkCounter *prometheus.CounterVec
}

// Attach configures telemetry exporters and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	constLabels := prometheus.Labels{}
	if cfg.Telemetry.ServiceName != "" {
		constLabels["service"] = cfg.Telemetry.ServiceName
	}

	checks := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "rbac",
		Name:        "capability_checks_total",
		Help:        "Total number of capability checks by verdict",
		ConstLabels: constLabels,
	}, []string{"verdict"})

	return &Provider{
		checkCounter: checks,
	}, nil
}

// ObserveCheck records the outcome of one capability check.
func (p *Provider) ObserveCheck(allowed bool) {
	if p == nil {
		return
	}
	verdict := "deny"
	if allowed {
		verdict = "allow"
	}
	p.checkCounter.WithLabelValues(verdict).Inc()
}
