package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingPruner struct {
	calls   atomic.Int32
	removed int
	err     error
}

func (p *countingPruner) Prune(context.Context) (int, error) {
	p.calls.Add(1)
	return p.removed, p.err
}

type countingSweeper struct {
	calls   atomic.Int32
	removed int
}

func (s *countingSweeper) Sweep(context.Context) (int, error) {
	s.calls.Add(1)
	return s.removed, nil
}

func TestSweepTotals(t *testing.T) {
	pruner := &countingPruner{removed: 2}
	sweeper := &countingSweeper{removed: 3}
	if got := Sweep(context.Background(), pruner, sweeper, zap.NewNop()); got != 5 {
		t.Fatalf("Sweep = %d, want 5", got)
	}
}

func TestSweepContinuesAfterPruneError(t *testing.T) {
	pruner := &countingPruner{err: errors.New("disk full")}
	sweeper := &countingSweeper{removed: 1}
	if got := Sweep(context.Background(), pruner, sweeper, zap.NewNop()); got != 1 {
		t.Fatalf("Sweep = %d, want 1", got)
	}
	if sweeper.calls.Load() != 1 {
		t.Fatal("jar sweep skipped after prune error")
	}
}

func TestStartRegistersSweep(t *testing.T) {
	scheduler, err := Start(context.Background(), time.Hour, &countingPruner{}, &countingSweeper{}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer scheduler.Stop()

	if n := scheduler.Len(); n != 1 {
		t.Fatalf("scheduler has %d jobs, want 1", n)
	}
}
