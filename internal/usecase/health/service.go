package health

import "context"

// Status is the aggregated health of the service.
type Status string

const (
	Healthy  Status = "ok"
	Degraded Status = "degraded"
)

// CheckResult is the outcome of one component check.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Report lists per-component outcomes and their aggregate.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	snapshots SnapshotChecker
	embedding EmbeddingChecker
	cache     CachePinger
}

// New creates a Service. embedding can be nil.
func New(snapshots SnapshotChecker, embedding EmbeddingChecker) *Service {
	return &Service{snapshots: snapshots, embedding: embedding}
}

// WithCache adds the optional cache backend to the checked components.
func (s *Service) WithCache(p CachePinger) *Service {
	s.cache = p
	return s
}

// Check probes every configured component. A missing snapshot degrades
// rather than fails: the process is up, it just cannot answer queries yet.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	_, err := s.snapshots.Pointer()
	checks["snapshot"] = toResult(err)

	if s.embedding != nil {
		checks["embedding"] = toResult(s.embedding.HealthCheck(ctx))
	}
	if s.cache != nil {
		checks["cache"] = toResult(s.cache.Ping(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func toResult(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
