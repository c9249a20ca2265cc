package health

import (
	"context"
	"errors"
	"testing"

	"github.com/driftsync/driftsync/internal/testutil"
)

func TestReport_AllHealthy(t *testing.T) {
	s := NewService(testutil.NopLogger())
	s.Register("database", true, func(ctx context.Context) error { return nil })
	s.Register("probe", false, func(ctx context.Context) error { return nil })

	rep := s.Report(context.Background())
	if rep.Status != StatusOK {
		t.Errorf("Status = %s, want ok", rep.Status)
	}
	if len(rep.Checks) != 2 {
		t.Fatalf("Checks = %d, want 2", len(rep.Checks))
	}
	if rep.Checks[0].Name != "database" || rep.Checks[1].Name != "probe" {
		t.Errorf("check order = %s, %s, want registration order", rep.Checks[0].Name, rep.Checks[1].Name)
	}
}

func TestReport_NonCriticalDegrades(t *testing.T) {
	s := NewService(testutil.NopLogger())
	s.Register("database", true, func(ctx context.Context) error { return nil })
	s.Register("probe", false, func(ctx context.Context) error { return errors.New("ffprobe not found") })

	rep := s.Report(context.Background())
	if rep.Status != StatusDegraded {
		t.Errorf("Status = %s, want degraded", rep.Status)
	}
	if !s.Healthy(context.Background()) {
		t.Error("Healthy() = false, want true while only degraded")
	}
	if rep.Checks[1].Detail != "ffprobe not found" {
		t.Errorf("Detail = %q", rep.Checks[1].Detail)
	}
}

func TestReport_CriticalFails(t *testing.T) {
	s := NewService(testutil.NopLogger())
	s.Register("database", true, func(ctx context.Context) error { return errors.New("ping: closed") })
	s.Register("probe", false, func(ctx context.Context) error { return nil })

	rep := s.Report(context.Background())
	if rep.Status != StatusFailing {
		t.Errorf("Status = %s, want failing", rep.Status)
	}
	if s.Healthy(context.Background()) {
		t.Error("Healthy() = true with failing critical check")
	}
}

func TestRegister_Replaces(t *testing.T) {
	s := NewService(testutil.NopLogger())
	s.Register("database", true, func(ctx context.Context) error { return errors.New("down") })
	s.Register("database", true, func(ctx context.Context) error { return nil })

	rep := s.Report(context.Background())
	if len(rep.Checks) != 1 {
		t.Fatalf("Checks = %d, want 1 after replacement", len(rep.Checks))
	}
	if rep.Status != StatusOK {
		t.Errorf("Status = %s, want ok from replacement check", rep.Status)
	}
}
