package cart

import "github.com/go-faster/errors"

var (
	// ErrNoValue is returned by Store.Get when the key holds nothing.
	ErrNoValue = errors.New("no stored value")
	// ErrQuotaExceeded is returned by Store.Set when the store cannot accept
	// the value because its total quota would be exceeded.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Store is a size-bounded key-value store holding the serialized ledger.
// A ledger owns exactly one key; nothing else writes it.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}
