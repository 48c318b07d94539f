package txstore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
)

func incr(old string) (string, error) {
	n, _ := strconv.Atoi(old)
	return strconv.Itoa(n + 1), nil
}

func TestLocalAttemptCommitsAndTreatsMissingAsEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewLocalTxStore()
	t.Cleanup(func() { _ = s.Close(ctx) })

	old, nv, err := s.Attempt(ctx, "c", incr)
	if err != nil {
		t.Fatal(err)
	}
	if old != "" || nv != "1" {
		t.Fatalf("old=%q new=%q want \"\",\"1\"", old, nv)
	}
	if v, ok := s.Get(ctx, "c"); !ok || v != "1" {
		t.Fatalf("Get=%q,%v want 1,true", v, ok)
	}
}

func TestLocalAttemptConflictsWhenKeyChangesDuringNext(t *testing.T) {
	ctx := context.Background()
	s := NewLocalTxStore()
	t.Cleanup(func() { _ = s.Close(ctx) })
	s.Set(ctx, "c", "10")

	_, _, err := s.Attempt(ctx, "c", func(old string) (string, error) {
		s.Set(ctx, "c", "99") // concurrent writer
		return incr(old)
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err=%v want ErrConflict", err)
	}
	if v, _ := s.Get(ctx, "c"); v != "99" {
		t.Fatalf("conflicting commit must be discarded, got %q", v)
	}
}

func TestLocalAttemptPropagatesNextError(t *testing.T) {
	ctx := context.Background()
	s := NewLocalTxStore()
	t.Cleanup(func() { _ = s.Close(ctx) })
	boom := errors.New("boom")

	_, _, err := s.Attempt(ctx, "c", func(string) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if _, ok := s.Get(ctx, "c"); ok {
		t.Fatal("failed attempt must not write")
	}
}

func TestLocalConcurrentAttemptsNeverLoseUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewLocalTxStore()
	t.Cleanup(func() { _ = s.Close(ctx) })

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, _, err := s.Attempt(ctx, "c", incr)
				if err == nil {
					return
				}
				if !errors.Is(err, ErrConflict) {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if v, _ := s.Get(ctx, "c"); v != strconv.Itoa(workers) {
		t.Fatalf("counter=%q want %d", v, workers)
	}
}
