package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/triage/internal/db"
)

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps oracle and embedding token counters in valkey so budgets survive restarts.
// Keys look like triage:budget:{provider}:daily:2006-01-02 or :monthly:2006-01.
type Store struct {
	kv    kv
	grace time.Duration
	now   func() time.Time
}

// New creates a budget store. Counters expire grace after their period ends.
func New(s kv, grace time.Duration) *Store {
	return &Store{kv: s, grace: grace, now: time.Now}
}

// IncrBy adds tokens to the counter. The first write of a period sets the expiry.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if err := s.kv.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("budget incr %s: %w", key, err)
	}
	if err := s.kv.Expire(ctx, key, s.ttl(key), true); err != nil {
		return fmt.Errorf("budget expire %s: %w", key, err)
	}
	return nil
}

// Get returns the counter, 0 when the period has no usage yet.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget get %s: %w", key, err)
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget get %s: corrupt counter %q: %w", key, data, err)
	}
	return n, nil
}

// ttl runs to the end of the key's period plus grace. Keys without a
// parseable period fall back to a month.
func (s *Store) ttl(key string) time.Duration {
	now := s.now().UTC()
	end, ok := periodEnd(key)
	if !ok || !end.After(now) {
		end = now.AddDate(0, 1, 0)
	}
	return end.Sub(now) + s.grace
}

func periodEnd(key string) (time.Time, bool) {
	i := strings.LastIndexByte(key, ':')
	if i < 0 {
		return time.Time{}, false
	}
	stamp, prefix := key[i+1:], key[:i]
	switch {
	case strings.HasSuffix(prefix, ":daily"):
		day, err := time.Parse(time.DateOnly, stamp)
		if err != nil {
			return time.Time{}, false
		}
		return day.AddDate(0, 0, 1), true
	case strings.HasSuffix(prefix, ":monthly"):
		month, err := time.Parse("2006-01", stamp)
		if err != nil {
			return time.Time{}, false
		}
		return month.AddDate(0, 1, 0), true
	}
	return time.Time{}, false
}
