package redis

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/triage/internal/db"
)

// CreateIndex runs FT.CREATE. Losing a creation race to another replica yields db.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index %s: %w", def.Name, err)
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(def.Args()...).Build()
	err := s.do(ctx, cmd).Error()
	if isRedisErr(err, "already exists") {
		return db.ErrIndexExists
	}
	return db.OpError("FT.CREATE", err)
}

// IndexExists probes FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	err := s.do(ctx, s.b().Arbitrary("FT.INFO").Args(name).Build()).Error()
	switch {
	case err == nil:
		return true, nil
	case isRedisErr(err, "unknown index name"), isRedisErr(err, "not found"):
		return false, nil
	}
	return false, db.OpError("FT.INFO", err)
}
