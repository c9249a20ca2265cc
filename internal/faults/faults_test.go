package faults

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/driftsync/driftsync/internal/catalog"
	"github.com/driftsync/driftsync/internal/plex"
	"github.com/driftsync/driftsync/internal/testutil"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "net fail" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"unauthorized", plex.ErrUnauthorized, KindAuthentication},
		{"wrapped unauthorized", fmt.Errorf("sync: %w", plex.ErrUnauthorized), KindAuthentication},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"validation", fmt.Errorf("server: %w", catalog.ErrValidation), KindValidation},
		{"not exist", os.ErrNotExist, KindFileAccess},
		{"permission", fmt.Errorf("open: %w", os.ErrPermission), KindFileAccess},
		{"net error", &fakeNetError{}, KindNetwork},
		{"net timeout", &fakeNetError{timeout: true}, KindTimeout},
		{"path error", &os.PathError{Op: "stat", Path: "/x", Err: errors.New("bad fd")}, KindFileAccess},
		{"anything else", errors.New("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestSeverityOf(t *testing.T) {
	cases := map[Kind]Severity{
		KindAuthentication: SeverityCritical,
		KindDatabase:       SeverityHigh,
		KindNetwork:        SeverityHigh,
		KindFileAccess:     SeverityMedium,
		KindTimeout:        SeverityMedium,
		KindValidation:     SeverityLow,
		KindParsing:        SeverityLow,
		KindUnknown:        SeverityMedium,
	}
	for kind, want := range cases {
		if got := SeverityOf(kind); got != want {
			t.Errorf("SeverityOf(%s) = %s, want %s", kind, got, want)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	h := NewHandler(testutil.NopLogger())

	cases := []struct {
		kind    Kind
		attempt int
		want    bool
	}{
		{KindNetwork, 1, true},
		{KindNetwork, 4, true},
		{KindNetwork, 5, false},
		{KindTimeout, 2, true},
		{KindTimeout, 3, false},
		{KindDatabase, 3, false},
		{KindFileAccess, 1, true},
		{KindFileAccess, 2, false},
		{KindAuthentication, 1, false},
		{KindValidation, 1, false},
		{KindParsing, 1, false},
		{KindUnknown, 1, true},
		{KindUnknown, 2, false},
		{Kind("UNREGISTERED"), 1, true},
	}

	for _, tc := range cases {
		if got := h.ShouldRetry(tc.kind, tc.attempt); got != tc.want {
			t.Errorf("ShouldRetry(%s, %d) = %v, want %v", tc.kind, tc.attempt, got, tc.want)
		}
	}
}

func TestDelay(t *testing.T) {
	h := NewHandler(testutil.NopLogger())
	h.jitter = func() float64 { return 1.0 }

	cases := []struct {
		kind    Kind
		attempt int
		want    time.Duration
	}{
		{KindNetwork, 1, 2 * time.Second},
		{KindNetwork, 2, 4 * time.Second},
		{KindNetwork, 3, 8 * time.Second},
		{KindTimeout, 1, 5 * time.Second},
		{KindDatabase, 2, 2 * time.Second},
		{KindAuthentication, 1, 0},
		{KindValidation, 3, 0},
		// 2s << 9 is far past the cap.
		{KindNetwork, 10, 60 * time.Second},
	}

	for _, tc := range cases {
		if got := h.Delay(tc.kind, tc.attempt); got != tc.want {
			t.Errorf("Delay(%s, %d) = %v, want %v", tc.kind, tc.attempt, got, tc.want)
		}
	}
}

func TestDelay_JitterCapped(t *testing.T) {
	h := NewHandler(testutil.NopLogger())

	// Worst-case jitter on a capped delay must not exceed the cap.
	h.jitter = func() float64 { return 1.4999 }
	if got := h.Delay(KindNetwork, 10); got > 60*time.Second {
		t.Errorf("Delay() = %v, exceeds cap", got)
	}

	h.jitter = func() float64 { return 0.5 }
	if got := h.Delay(KindNetwork, 1); got != time.Second {
		t.Errorf("Delay() with 0.5 jitter = %v, want 1s", got)
	}
}

func TestNetworkPolicy_MatchesNetworkRow(t *testing.T) {
	h := NewHandler(testutil.NopLogger())
	h.jitter = func() float64 { return 1.0 }
	p := h.NetworkPolicy()

	if !p.ShouldRetry(4) {
		t.Error("ShouldRetry(4) = false, want a fifth attempt")
	}
	if p.ShouldRetry(5) {
		t.Error("ShouldRetry(5) = true, want exhausted after five attempts")
	}
	if got := p.Delay(1); got != 2*time.Second {
		t.Errorf("Delay(1) = %v, want 2s", got)
	}
	if got := p.Delay(2); got != 4*time.Second {
		t.Errorf("Delay(2) = %v, want 4s", got)
	}
}

func TestHandle_RecordsAndSummarizes(t *testing.T) {
	h := NewHandler(testutil.NopLogger())
	start := time.Now().UTC()

	rec := h.Handle(fmt.Errorf("pull: %w", plex.ErrUnauthorized), Context{
		Operation: "fetch_items",
		ItemKey:   "1001",
		ServerID:  1,
		LibraryID: 2,
	})
	if rec.Kind != KindAuthentication || rec.Severity != SeverityCritical {
		t.Errorf("record = %s/%s, want AUTHENTICATION/CRITICAL", rec.Kind, rec.Severity)
	}
	if rec.Operation != "fetch_items" || rec.ItemKey != "1001" {
		t.Errorf("record context = %+v", rec)
	}
	if rec.Stack == "" {
		t.Error("record has no stack")
	}

	h.Handle(errors.New("boom"), Context{Operation: "map_item"})

	s := h.Summarize(start)
	if s.Total != 2 {
		t.Errorf("Summarize().Total = %d, want 2", s.Total)
	}
	if s.ByKind[KindAuthentication] != 1 || s.ByKind[KindUnknown] != 1 {
		t.Errorf("ByKind = %v", s.ByKind)
	}
	if s.BySeverity[SeverityCritical] != 1 || s.BySeverity[SeverityMedium] != 1 {
		t.Errorf("BySeverity = %v", s.BySeverity)
	}

	// A window after both faults sees nothing.
	if s := h.Summarize(time.Now().UTC().Add(time.Minute)); s.Total != 0 {
		t.Errorf("future window Total = %d, want 0", s.Total)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	h := NewHandler(testutil.NopLogger())
	for i := 0; i < 5; i++ {
		h.Handle(fmt.Errorf("fault %d", i), Context{})
	}

	recent := h.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("Recent(3) = %d records", len(recent))
	}
	if recent[0].Message != "fault 4" || recent[2].Message != "fault 2" {
		t.Errorf("Recent order = [%s, %s, %s]", recent[0].Message, recent[1].Message, recent[2].Message)
	}

	if got := h.Recent(0); len(got) != 5 {
		t.Errorf("Recent(0) = %d records, want all", len(got))
	}
}

func TestHandle_BoundedRecords(t *testing.T) {
	h := NewHandler(testutil.NopLogger())
	for i := 0; i < maxRecords+10; i++ {
		h.Handle(fmt.Errorf("fault %d", i), Context{})
	}

	recent := h.Recent(0)
	if len(recent) != maxRecords {
		t.Fatalf("records = %d, want bounded at %d", len(recent), maxRecords)
	}
	if recent[0].Message != fmt.Sprintf("fault %d", maxRecords+9) {
		t.Errorf("newest = %s", recent[0].Message)
	}
}
