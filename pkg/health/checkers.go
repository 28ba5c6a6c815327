package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports the result of pinging a database pool.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// KVStore is the subset of a cart store the storage check exercises.
type KVStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

const storeProbeKey = "health:probe"

// StoreCheck writes, reads back and removes a probe key in the cart store.
func StoreCheck(s KVStore) CheckFunc {
	return func(_ context.Context) error {
		want := []byte("ok")
		if err := s.Set(storeProbeKey, want); err != nil {
			return errors.Wrap(err, "write probe")
		}
		got, err := s.Get(storeProbeKey)
		if err != nil {
			return errors.Wrap(err, "read probe")
		}
		if string(got) != string(want) {
			return errors.Errorf("probe read back %q", got)
		}
		if err := s.Remove(storeProbeKey); err != nil {
			return errors.Wrap(err, "remove probe")
		}
		return nil
	}
}

// StoreUsageCheck fails when the store holds more than limit bytes. It warns
// before writes start failing with a quota error.
func StoreUsageCheck(used func() int64, limit int64) CheckFunc {
	return func(_ context.Context) error {
		if n := used(); limit > 0 && n > limit {
			return errors.Errorf("cart storage uses %d bytes, limit %d", n, limit)
		}
		return nil
	}
}

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
