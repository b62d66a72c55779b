package clientnode

import (
	"testing"

	"github.com/lloom-network/lloom/internal/protocol"
)

func TestMergeModelResponses_DedupesAndCounts(t *testing.T) {
	responses := []protocol.ModelQueryResponse{
		{Models: []protocol.ModelDescriptor{{ModelID: "a"}, {ModelID: "b"}}},
		{Models: []protocol.ModelDescriptor{{ModelID: "a"}}},
		{Models: []protocol.ModelDescriptor{{ModelID: "c"}}},
	}

	merged := mergeModelResponses(responses)
	if len(merged) != 3 {
		t.Fatalf("len(merged) = %d, want 3", len(merged))
	}

	counts := make(map[string]int)
	for _, m := range merged {
		counts[m.ModelID] = m.SeenFromValidators
	}
	if counts["a"] != 2 {
		t.Errorf("count for a = %d, want 2", counts["a"])
	}
	if counts["b"] != 1 {
		t.Errorf("count for b = %d, want 1", counts["b"])
	}
	if counts["c"] != 1 {
		t.Errorf("count for c = %d, want 1", counts["c"])
	}
}

func TestMergeModelResponses_EmptyInput(t *testing.T) {
	merged := mergeModelResponses(nil)
	if len(merged) != 0 {
		t.Fatalf("len(merged) = %d, want 0", len(merged))
	}
}
