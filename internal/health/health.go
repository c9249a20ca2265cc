// Package health runs named checks against the dependencies the ingest
// pipeline needs: the database, the media probe, and the fault log.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status summarizes one check or the whole report.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailing  Status = "failing"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

type entry struct {
	fn       CheckFunc
	critical bool
}

// Service holds the registered checks and produces reports on demand.
// Checks run at report time; nothing is cached between reports.
type Service struct {
	logger zerolog.Logger

	mu     sync.Mutex
	order  []string
	checks map[string]entry
}

// NewService creates an empty health service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		logger: logger.With().Str("component", "health").Logger(),
		checks: make(map[string]entry),
	}
}

// Register adds a named check. A failing critical check marks the whole
// report failing; a non-critical one only degrades it. Re-registering a
// name replaces the previous check.
func (s *Service) Register(name string, critical bool, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checks[name]; !ok {
		s.order = append(s.order, name)
	}
	s.checks[name] = entry{fn: fn, critical: critical}
}

// Result is the outcome of one check.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Detail   string `json:"detail,omitempty"`
}

// Report is the outcome of running every check.
type Report struct {
	Status    Status    `json:"status"`
	Checks    []Result  `json:"checks"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Report runs every check in registration order and aggregates.
func (s *Service) Report(ctx context.Context) Report {
	s.mu.Lock()
	order := make([]string, len(s.order))
	copy(order, s.order)
	checks := make(map[string]entry, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.Unlock()

	rep := Report{Status: StatusOK, CheckedAt: time.Now().UTC()}
	for _, name := range order {
		e := checks[name]
		res := Result{Name: name, Status: StatusOK, Critical: e.critical}

		if err := e.fn(ctx); err != nil {
			res.Detail = err.Error()
			if e.critical {
				res.Status = StatusFailing
				rep.Status = StatusFailing
			} else {
				res.Status = StatusDegraded
				if rep.Status == StatusOK {
					rep.Status = StatusDegraded
				}
			}
			s.logger.Warn().Str("check", name).Err(err).Msg("health check failed")
		}
		rep.Checks = append(rep.Checks, res)
	}
	return rep
}

// Healthy reports whether no critical check is failing.
func (s *Service) Healthy(ctx context.Context) bool {
	return s.Report(ctx).Status != StatusFailing
}
