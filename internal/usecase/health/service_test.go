package health

import (
	"context"
	"errors"
	"testing"
)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct{ err error }

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

func TestCheckAllHealthy(t *testing.T) {
	s := New(&mockPinger{}, &mockChecker{})
	rep := s.Check(context.Background())

	if rep.Status != Healthy {
		t.Errorf("status = %s, want %s", rep.Status, Healthy)
	}
	if rep.Checks["store"] != CheckOK || rep.Checks["embedding"] != CheckOK {
		t.Errorf("checks = %v", rep.Checks)
	}
}

func TestCheckEmbeddingDownIsDegraded(t *testing.T) {
	s := New(&mockPinger{}, &mockChecker{err: errors.New("refused")})
	rep := s.Check(context.Background())

	if rep.Status != Degraded {
		t.Errorf("status = %s, want %s", rep.Status, Degraded)
	}
	if rep.Checks["embedding"] != CheckError {
		t.Errorf("embedding check = %s", rep.Checks["embedding"])
	}
}

func TestCheckStoreDownIsUnhealthy(t *testing.T) {
	s := New(&mockPinger{err: errors.New("refused")}, &mockChecker{})
	rep := s.Check(context.Background())

	if rep.Status != Unhealthy {
		t.Errorf("status = %s, want %s", rep.Status, Unhealthy)
	}
}

func TestCheckNilEmbedding(t *testing.T) {
	s := New(&mockPinger{}, nil)
	rep := s.Check(context.Background())

	if rep.Status != Healthy {
		t.Errorf("status = %s, want %s", rep.Status, Healthy)
	}
	if _, ok := rep.Checks["embedding"]; ok {
		t.Error("embedding check present for nil checker")
	}
}
