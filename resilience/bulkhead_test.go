package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBulkhead_AcquireRelease(t *testing.T) {
	rejected := 0
	b := NewBulkhead(BulkheadConfig{Name: "streams", MaxConcurrent: 2, OnReject: func(string) { rejected++ }})

	r1, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r2, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Acquire(context.Background()); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}
	if rejected != 1 {
		t.Errorf("expected 1 rejection, got %d", rejected)
	}
	if b.InUse() != 2 || b.Available() != 0 {
		t.Errorf("unexpected usage in=%d avail=%d", b.InUse(), b.Available())
	}
	r1()
	r2()
	if b.Available() != 2 {
		t.Errorf("expected all slots free, got %d", b.Available())
	}
}

func TestBulkhead_WaitTimeout(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: 10 * time.Millisecond})
	release, _ := b.Acquire(context.Background())
	defer release()
	if _, err := b.Acquire(context.Background()); !errors.Is(err, ErrBulkheadTimeout) {
		t.Errorf("expected ErrBulkheadTimeout, got %v", err)
	}
}

func TestBulkhead_Execute(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	ran := false
	if err := b.Execute(context.Background(), func() error { ran = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !ran || b.InUse() != 0 {
		t.Errorf("expected fn to run and slot released, ran=%v inUse=%d", ran, b.InUse())
	}
}
