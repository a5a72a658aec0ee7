package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dropwise/dispatch/internal/apperr"
)

// Key namespaces used across the service. Nested locks always go from a
// delivery or subscription key to a wallet key, which matches lexical order.
const (
	PrefixUser        = "user:"
	PrefixUserEmail   = "user_email:"
	PrefixWallet      = "wallet:"
	PrefixSME         = "sme:"
	PrefixSMEPurchase = "sme_purchase:"
	PrefixDelivery    = "delivery:"
	PrefixPayment     = "payment:"
)

// Record is a single key/value pair returned by a prefix scan.
type Record struct {
	Key   string
	Value []byte
}

// Store is the durable key/value ledger. It offers point reads and writes and
// prefix scans, and nothing stronger: callers serialize read-modify-write
// sequences with a Locker.
type Store interface {
	// Get returns apperr.ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Scan returns every record whose key starts with prefix, ordered by key.
	Scan(ctx context.Context, prefix string) ([]Record, error)
}

// GetJSON loads key and decodes it into a T.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var out T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, apperr.Wrap(apperr.CodeStoreUnavailable, fmt.Sprintf("decode %s", key), err)
	}
	return out, nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// ScanJSON decodes every record under prefix. Records that fail to decode are
// skipped and reported through the returned skipped count.
func ScanJSON[T any](ctx context.Context, s Store, prefix string) ([]T, int, error) {
	records, err := s.Scan(ctx, prefix)
	if err != nil {
		return nil, 0, err
	}
	out := make([]T, 0, len(records))
	skipped := 0
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Value, &v); err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped, nil
}

func notFound(key string) error {
	return apperr.New(apperr.CodeNotFound, fmt.Sprintf("%s not found", key))
}

func unavailable(op, key string, err error) error {
	return apperr.Wrap(apperr.CodeStoreUnavailable, fmt.Sprintf("%s %s", op, key), err)
}
