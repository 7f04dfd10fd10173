package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/triage/internal/db"
)

// JSONSet writes a document, or the value at path inside one.
func (s *Store) JSONSet(ctx context.Context, key, path string, data []byte) error {
	cmd := s.b().JsonSet().Key(key).Path(path).Value(string(data)).Build()
	return db.OpError("JSON.SET", s.do(ctx, cmd).Error())
}

// JSONGet reads a document. With paths, the reply is keyed by path.
func (s *Store) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	cmd := s.b().JsonGet().Key(key).Path(paths...).Build()
	raw, err := s.do(ctx, cmd).ToString()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, db.OpError("JSON.GET", err)
	case raw == "":
		return nil, db.ErrKeyNotFound
	}
	return []byte(raw), nil
}
