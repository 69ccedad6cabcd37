package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded by dispatch_assignments_total.
const (
	OutcomeAssigned    = "assigned"
	OutcomeNoCandidate = "no_candidate"
	OutcomeEscalated   = "escalated"
	OutcomeFailed      = "failed"
)

// NewRateLimitExceededTotal returns a Prometheus counter for the number of rejected HTTP requests due to rate limiting
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// NewGatewayRetriesTotal returns a Prometheus counter for the number of retry attempts performed by gateways
func NewGatewayRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Total number of retry attempts performed by gateways",
	})
}

// NewAssignmentsTotal counts dispatch attempts by outcome.
func NewAssignmentsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Total number of dispatch attempts by outcome",
	}, []string{"outcome"})
}

// NewClaimConflictsTotal counts driver claims lost to a concurrent selection.
func NewClaimConflictsTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_claim_conflicts_total",
		Help: "Total number of driver claims lost to a concurrent selection",
	})
}

// NewETARecomputationsTotal counts ETA recomputations triggered by pings.
func NewETARecomputationsTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eta_recomputations_total",
		Help: "Total number of ETA recomputations",
	})
}

// NewETAProviderFailuresTotal counts routing provider failures.
func NewETAProviderFailuresTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eta_provider_failures_total",
		Help: "Total number of routing provider failures during ETA computation",
	})
}

// NewPublishFailuresTotal counts realtime publications and notifications given up on.
func NewPublishFailuresTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "publish_failures_total",
		Help: "Total number of realtime publications and notifications dropped after retries",
	})
}

// Set groups the collectors shared across services.
type Set struct {
	RateLimitExceeded   prometheus.Counter
	GatewayRetries      prometheus.Counter
	Assignments         *prometheus.CounterVec
	ClaimConflicts      prometheus.Counter
	ETARecomputations   prometheus.Counter
	ETAProviderFailures prometheus.Counter
	PublishFailures     prometheus.Counter
}

// NewSet builds unregistered collectors.
func NewSet() *Set {
	return &Set{
		RateLimitExceeded:   NewRateLimitExceededTotal(),
		GatewayRetries:      NewGatewayRetriesTotal(),
		Assignments:         NewAssignmentsTotal(),
		ClaimConflicts:      NewClaimConflictsTotal(),
		ETARecomputations:   NewETARecomputationsTotal(),
		ETAProviderFailures: NewETAProviderFailuresTotal(),
		PublishFailures:     NewPublishFailuresTotal(),
	}
}

// Register adds every collector to reg. A collector that is already
// registered is replaced by the registered instance so repeated containers
// keep counting into the same series.
func (s *Set) Register(reg prometheus.Registerer) error {
	counters := []struct {
		name string
		c    *prometheus.Counter
	}{
		{"rate_limit_exceeded_total", &s.RateLimitExceeded},
		{"gateway_retries_total", &s.GatewayRetries},
		{"dispatch_claim_conflicts_total", &s.ClaimConflicts},
		{"eta_recomputations_total", &s.ETARecomputations},
		{"eta_provider_failures_total", &s.ETAProviderFailures},
		{"publish_failures_total", &s.PublishFailures},
	}
	for _, it := range counters {
		existing, err := register(reg, *it.c)
		if err != nil {
			return fmt.Errorf("register %s: %w", it.name, err)
		}
		if c, ok := existing.(prometheus.Counter); ok {
			*it.c = c
		}
	}

	existing, err := register(reg, s.Assignments)
	if err != nil {
		return fmt.Errorf("register dispatch_assignments_total: %w", err)
	}
	if v, ok := existing.(*prometheus.CounterVec); ok {
		s.Assignments = v
	}
	return nil
}

// register returns the already registered collector, if any.
func register(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	err := reg.Register(c)
	if err == nil {
		return nil, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector, nil
	}
	return nil, err
}
