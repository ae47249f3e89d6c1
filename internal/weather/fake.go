package weather

import (
	"context"
	"errors"
	"sync"
)

// FakeFetcher fails Fails times, then returns Snapshot. A negative
// Fails never succeeds.
type FakeFetcher struct {
	mu sync.Mutex

	Snapshot Snapshot
	Fails    int
	Err      error

	calls int
}

// Fetch returns the scripted result.
func (f *FakeFetcher) Fetch(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Fails < 0 || f.calls <= f.Fails {
		if f.Err != nil {
			return Snapshot{}, f.Err
		}
		return Snapshot{}, errors.New("fake fetch failure")
	}
	return f.Snapshot, nil
}

// Calls returns the number of Fetch calls.
func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
