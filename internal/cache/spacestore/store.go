// Package spacestore caches reduced dataset extents: a bounded in-process
// LRU in front of an optional shared Redis tier.
package spacestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/spatial-heatmap/internal/cache"
	"github.com/mohammed-shakir/spatial-heatmap/internal/cache/keys"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/observability"
)

type Options struct {
	TTL       time.Duration
	LRUSize   int
	OpTimeout time.Duration
	Logger    *slog.Logger
}

type Store struct {
	remote    cache.Store
	local     *expirable.LRU[string, model.Space]
	ttl       time.Duration
	opTimeout time.Duration
	log       *slog.Logger
}

// New builds a Store. remote may be nil, leaving only the local tier.
func New(remote cache.Store, opts Options) *Store {
	if opts.LRUSize <= 0 {
		opts.LRUSize = 1024
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		remote:    remote,
		local:     expirable.NewLRU[string, model.Space](opts.LRUSize, nil, opts.TTL),
		ttl:       opts.TTL,
		opTimeout: opts.OpTimeout,
		log:       opts.Logger,
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Store) Get(ctx context.Context, datasetID string) (model.Space, bool, error) {
	key := keys.SpaceKey(datasetID)
	if sp, ok := s.local.Get(key); ok {
		observability.IncSpaceCache("local", "hit")
		return sp, true, nil
	}
	observability.IncSpaceCache("local", "miss")
	if s.remote == nil {
		return model.Space{}, false, nil
	}

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	raw, ok, err := s.remote.Get(cctx, key)
	if err != nil {
		observability.IncSpaceCache("redis", "error")
		return model.Space{}, false, fmt.Errorf("space cache get %q: %w", datasetID, err)
	}
	if !ok {
		observability.IncSpaceCache("redis", "miss")
		return model.Space{}, false, nil
	}

	var sp model.Space
	if err := json.Unmarshal(raw, &sp); err != nil {
		observability.IncSpaceCache("redis", "corrupt")
		s.log.WarnContext(ctx, "dropping undecodable cached space", "key", key, "err", err)
		_ = s.remote.Del(cctx, key)
		return model.Space{}, false, nil
	}
	observability.IncSpaceCache("redis", "hit")
	s.local.Add(key, sp)
	return sp, true, nil
}

// GetMany looks up several datasets at once; ids without a cached Space are
// absent from the result.
func (s *Store) GetMany(ctx context.Context, datasetIDs []string) (map[string]model.Space, error) {
	out := make(map[string]model.Space, len(datasetIDs))
	var missing []string
	byKey := make(map[string]string, len(datasetIDs))
	for _, id := range datasetIDs {
		key := keys.SpaceKey(id)
		if sp, ok := s.local.Get(key); ok {
			observability.IncSpaceCache("local", "hit")
			out[id] = sp
			continue
		}
		observability.IncSpaceCache("local", "miss")
		missing = append(missing, key)
		byKey[key] = id
	}
	if len(missing) == 0 || s.remote == nil {
		return out, nil
	}

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	raw, err := s.remote.MGet(cctx, missing)
	if err != nil {
		observability.IncSpaceCache("redis", "error")
		return out, fmt.Errorf("space cache mget: %w", err)
	}
	for key, b := range raw {
		var sp model.Space
		if err := json.Unmarshal(b, &sp); err != nil {
			observability.IncSpaceCache("redis", "corrupt")
			continue
		}
		observability.IncSpaceCache("redis", "hit")
		s.local.Add(key, sp)
		out[byKey[key]] = sp
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, datasetID string, sp model.Space) error {
	key := keys.SpaceKey(datasetID)
	s.local.Add(key, sp)
	if s.remote == nil {
		return nil
	}
	b, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("encode space: %w", err)
	}
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.remote.Set(cctx, key, b, s.ttl); err != nil {
		return fmt.Errorf("space cache put %q: %w", datasetID, err)
	}
	return nil
}

func (s *Store) Invalidate(ctx context.Context, datasetIDs ...string) error {
	ks := make([]string, 0, len(datasetIDs))
	for _, id := range datasetIDs {
		key := keys.SpaceKey(id)
		s.local.Remove(key)
		ks = append(ks, key)
	}
	if s.remote == nil || len(ks) == 0 {
		return nil
	}
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.remote.Del(cctx, ks...)
}
