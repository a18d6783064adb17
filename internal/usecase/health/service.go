// Package health aggregates component availability checks.
package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the vector store is unavailable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
	cache     CachePinger
}

// New creates a Service. embedding and cache can be nil.
func New(store StorePinger, embedding EmbeddingChecker, cache CachePinger) *Service {
	return &Service{store: store, embedding: embedding, cache: cache}
}

// Check runs health checks against all components. A store failure makes the
// report Unhealthy; embedding or cache failures only degrade it, since
// ingestion fails fast and cached queries may still work.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
		status = Unhealthy
	} else {
		checks["store"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["embedding"] = CheckOK
		}
	}

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks["cache"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["cache"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
