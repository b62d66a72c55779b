package network

import (
	"testing"

	"github.com/lloom-network/lloom/internal/protocol"
)

func TestRoleCID_DeterministicPerRole(t *testing.T) {
	c1, err := roleCID(protocol.RoleExecutor)
	if err != nil {
		t.Fatalf("roleCID: %v", err)
	}
	c2, err := roleCID(protocol.RoleExecutor)
	if err != nil {
		t.Fatalf("roleCID: %v", err)
	}
	if !c1.Equals(c2) {
		t.Error("roleCID should be deterministic for the same role")
	}

	cValidator, err := roleCID(protocol.RoleValidator)
	if err != nil {
		t.Fatalf("roleCID: %v", err)
	}
	if c1.Equals(cValidator) {
		t.Error("executor and validator roles must map to distinct discovery keys")
	}
}

func TestDefaultBackoffConfig_IsMonotonic(t *testing.T) {
	cfg := DefaultBackoffConfig()
	if cfg.Initial <= 0 {
		t.Error("Initial backoff must be positive")
	}
	if cfg.Max < cfg.Initial {
		t.Error("Max backoff must be >= Initial")
	}
	if cfg.Factor <= 1.0 {
		t.Error("Factor must be > 1.0 for backoff to actually grow")
	}
}
