package neighborhood

import (
	"math/rand"
	"testing"
	"time"
)

func TestAddNeighborJitter(t *testing.T) {
	src := rand.New(rand.NewSource(1))
	for _, n := range []int{1, 2, 5, 20} {
		max := time.Duration(3*n) * time.Second
		for i := 0; i < 200; i++ {
			got := addNeighborJitter(src, n)
			if got < 0 || got >= max {
				t.Fatalf("jitter %v out of [0, %v) for n=%d", got, max, n)
			}
		}
	}
}

func TestAddNeighborJitterZeroSize(t *testing.T) {
	src := rand.New(rand.NewSource(1))
	if got := addNeighborJitter(src, 0); got != 0 {
		t.Fatalf("expected zero jitter for empty neighborhood, got %v", got)
	}
}
