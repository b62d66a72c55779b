package noncecache

import (
	"context"
	"testing"
)

func TestLRU_DetectsReplay(t *testing.T) {
	c := NewLRU(10)
	ctx := context.Background()

	seen, err := c.SeenAndRecord(ctx, "0xabc", 1)
	if err != nil {
		t.Fatalf("SeenAndRecord: %v", err)
	}
	if seen {
		t.Fatal("first occurrence should not be reported as seen")
	}

	seen, err = c.SeenAndRecord(ctx, "0xabc", 1)
	if err != nil {
		t.Fatalf("SeenAndRecord: %v", err)
	}
	if !seen {
		t.Fatal("second occurrence of the same (signer, nonce) must be reported as seen")
	}
}

func TestLRU_DistinctNoncesAreIndependent(t *testing.T) {
	c := NewLRU(10)
	ctx := context.Background()

	for _, n := range []uint64{1, 2, 3} {
		seen, err := c.SeenAndRecord(ctx, "0xabc", n)
		if err != nil {
			t.Fatalf("SeenAndRecord: %v", err)
		}
		if seen {
			t.Fatalf("nonce %d should not have been seen before", n)
		}
	}
}

func TestLRU_DifferentSignersDoNotCollide(t *testing.T) {
	c := NewLRU(10)
	ctx := context.Background()

	if seen, _ := c.SeenAndRecord(ctx, "0xaaa", 1); seen {
		t.Fatal("unexpected replay for signer 0xaaa")
	}
	if seen, _ := c.SeenAndRecord(ctx, "0xbbb", 1); seen {
		t.Fatal("same nonce from a different signer must not collide")
	}
}

func TestLRU_EvictsOldestBeyondCapacity(t *testing.T) {
	c := NewLRU(2)
	ctx := context.Background()

	c.SeenAndRecord(ctx, "0xabc", 1)
	c.SeenAndRecord(ctx, "0xabc", 2)
	c.SeenAndRecord(ctx, "0xabc", 3) // evicts nonce 1

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}

	seen, _ := c.SeenAndRecord(ctx, "0xabc", 1)
	if seen {
		t.Fatal("nonce 1 should have been evicted and treated as unseen again")
	}
}
