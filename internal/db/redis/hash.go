package redis

import (
	"context"

	"github.com/kailas-cloud/triage/internal/db"
)

// HSet writes a vector index entry. Blob fields pass through as raw strings.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	cmd := s.b().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	return db.OpError("HSET", s.do(ctx, cmd.Build()).Error())
}

// Del removes a key of any type.
func (s *Store) Del(ctx context.Context, key string) error {
	return db.OpError("DEL", s.do(ctx, s.b().Del().Key(key).Build()).Error())
}
