// Package faults classifies pipeline errors, drives retry decisions, and
// keeps a bounded record of everything that went wrong.
package faults

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/catalog"
	"github.com/driftsync/driftsync/internal/plex"
)

// Kind buckets an error by cause rather than by Go type.
type Kind string

const (
	KindNetwork        Kind = "NETWORK"
	KindAuthentication Kind = "AUTHENTICATION"
	KindFileAccess     Kind = "FILE_ACCESS"
	KindValidation     Kind = "VALIDATION"
	KindDatabase       Kind = "DATABASE"
	KindParsing        Kind = "PARSING"
	KindTimeout        Kind = "TIMEOUT"
	KindUnknown        Kind = "UNKNOWN"
)

// Severity ranks how alarming a fault kind is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityOf maps a kind to its fixed severity.
func SeverityOf(k Kind) Severity {
	switch k {
	case KindAuthentication:
		return SeverityCritical
	case KindDatabase, KindNetwork:
		return SeverityHigh
	case KindFileAccess, KindTimeout:
		return SeverityMedium
	case KindValidation, KindParsing:
		return SeverityLow
	}
	return SeverityMedium
}

type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

var policies = map[Kind]retryPolicy{
	KindNetwork:        {maxAttempts: 5, baseDelay: 2 * time.Second},
	KindTimeout:        {maxAttempts: 3, baseDelay: 5 * time.Second},
	KindDatabase:       {maxAttempts: 3, baseDelay: time.Second},
	KindFileAccess:     {maxAttempts: 2, baseDelay: time.Second},
	KindUnknown:        {maxAttempts: 2, baseDelay: 2 * time.Second},
	KindAuthentication: {maxAttempts: 1},
	KindValidation:     {maxAttempts: 1},
	KindParsing:        {maxAttempts: 1},
}

const (
	maxDelay   = 60 * time.Second
	maxRecords = 1000
)

// Classify maps an error to a fault kind by walking its chain.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, plex.ErrUnauthorized):
		return KindAuthentication
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, catalog.ErrValidation):
		return KindValidation
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return KindFileAccess
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return KindFileAccess
	}

	return KindUnknown
}

// Context situates a fault in the pipeline for the record.
type Context struct {
	Operation string
	ItemKey   string
	ServerID  int64
	LibraryID int64
	FilePath  string
}

// Record is one handled fault.
type Record struct {
	Kind      Kind
	Severity  Severity
	Operation string
	ItemKey   string
	ServerID  int64
	LibraryID int64
	FilePath  string
	Message   string
	Stack     string
	At        time.Time
}

// Summary aggregates recorded faults over a time window.
type Summary struct {
	Total      int              `json:"total"`
	ByKind     map[Kind]int     `json:"byKind"`
	BySeverity map[Severity]int `json:"bySeverity"`
}

// Handler records and classifies faults and computes retry delays.
type Handler struct {
	logger zerolog.Logger

	mu      sync.Mutex
	records []Record

	// jitter is swapped out in tests; returns a factor in [0.5, 1.5).
	jitter func() float64
}

// NewHandler creates a Handler.
func NewHandler(logger zerolog.Logger) *Handler {
	return &Handler{
		logger: logger.With().Str("component", "faults").Logger(),
		jitter: func() float64 { return 0.5 + rand.Float64() },
	}
}

// Handle classifies, records and logs one error, and returns its record.
func (h *Handler) Handle(err error, fc Context) Record {
	kind := Classify(err)
	rec := Record{
		Kind:      kind,
		Severity:  SeverityOf(kind),
		Operation: fc.Operation,
		ItemKey:   fc.ItemKey,
		ServerID:  fc.ServerID,
		LibraryID: fc.LibraryID,
		FilePath:  fc.FilePath,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		At:        time.Now().UTC(),
	}

	h.mu.Lock()
	h.records = append(h.records, rec)
	if len(h.records) > maxRecords {
		h.records = h.records[len(h.records)-maxRecords:]
	}
	h.mu.Unlock()

	evt := h.logger.Warn()
	if rec.Severity == SeverityCritical || rec.Severity == SeverityHigh {
		evt = h.logger.Error()
	}
	evt.Str("kind", string(kind)).
		Str("severity", string(rec.Severity)).
		Str("operation", fc.Operation).
		Str("item", fc.ItemKey).
		Err(err).
		Msg("fault recorded")

	return rec
}

// ShouldRetry reports whether another attempt is allowed for this kind.
// attempt is 1-based and counts attempts already made.
func (h *Handler) ShouldRetry(kind Kind, attempt int) bool {
	p, ok := policies[kind]
	if !ok {
		p = policies[KindUnknown]
	}
	return attempt < p.maxAttempts
}

// Delay computes the backoff before the given attempt: the kind's base
// delay doubled per attempt, jittered, and capped at one minute.
func (h *Handler) Delay(kind Kind, attempt int) time.Duration {
	p, ok := policies[kind]
	if !ok {
		p = policies[KindUnknown]
	}
	if p.baseDelay == 0 || attempt < 1 {
		return 0
	}

	d := p.baseDelay << uint(attempt-1)
	if d > maxDelay {
		d = maxDelay
	}
	d = time.Duration(float64(d) * h.jitter())
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// kindPolicy exposes one kind's retry row through the plex client's
// retry hook.
type kindPolicy struct {
	h    *Handler
	kind Kind
}

func (p kindPolicy) ShouldRetry(attempt int) bool { return p.h.ShouldRetry(p.kind, attempt) }

func (p kindPolicy) Delay(attempt int) time.Duration { return p.h.Delay(p.kind, attempt) }

// NetworkPolicy returns the network retry row for wiring into HTTP
// clients, so transport retries follow the same schedule as every other
// network fault.
func (h *Handler) NetworkPolicy() plex.RetryPolicy {
	return kindPolicy{h: h, kind: KindNetwork}
}

// Summarize aggregates the faults recorded at or after since.
func (h *Handler) Summarize(since time.Time) Summary {
	s := Summary{
		ByKind:     make(map[Kind]int),
		BySeverity: make(map[Severity]int),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range h.records {
		if rec.At.Before(since) {
			continue
		}
		s.Total++
		s.ByKind[rec.Kind]++
		s.BySeverity[rec.Severity]++
	}
	return s
}

// Recent returns up to n most recent fault records, newest first.
func (h *Handler) Recent(n int) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.records) {
		n = len(h.records)
	}
	out := make([]Record, 0, n)
	for i := len(h.records) - 1; i >= len(h.records)-n; i-- {
		out = append(out, h.records[i])
	}
	return out
}
