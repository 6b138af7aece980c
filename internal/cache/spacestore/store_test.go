package spacestore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/spatial-heatmap/internal/cache/keys"
	"github.com/mohammed-shakir/spatial-heatmap/internal/cache/redisstore"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
)

var sample = model.Space{MinX: -3, MinY: 1, MaxX: 40, MaxY: 12.5, ObjectCount: 9}

func newStore(t *testing.T, opts Options) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(rc, opts), mr
}

func TestPutGet_RoundTripsThroughRedis(t *testing.T) {
	s, mr := newStore(t, Options{TTL: time.Minute})
	ctx := context.Background()

	if err := s.Put(ctx, "case-1/algo-a", sample); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(keys.SpaceKey("case-1/algo-a")) {
		t.Fatalf("space not written to redis")
	}

	// a second process sharing redis sees the value
	other := New(s.remote, Options{Logger: s.log})
	got, ok, err := other.Get(ctx, "case-1/algo-a")
	if err != nil || !ok {
		t.Fatalf("Get ok=%v err=%v", ok, err)
	}
	if got != sample {
		t.Fatalf("got %+v want %+v", got, sample)
	}
}

func TestGet_Miss(t *testing.T) {
	s, _ := newStore(t, Options{})
	if _, ok, err := s.Get(context.Background(), "nope"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestGet_LocalTierServesAfterRedisLoss(t *testing.T) {
	s, mr := newStore(t, Options{})
	ctx := context.Background()
	if err := s.Put(ctx, "d", sample); err != nil {
		t.Fatal(err)
	}
	mr.FlushAll()
	got, ok, err := s.Get(ctx, "d")
	if err != nil || !ok || got != sample {
		t.Fatalf("got %+v ok=%v err=%v", got, ok, err)
	}
}

func TestGet_CorruptValueIsDropped(t *testing.T) {
	s, mr := newStore(t, Options{})
	key := keys.SpaceKey("broken")
	if err := mr.Set(key, "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Get(context.Background(), "broken"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if mr.Exists(key) {
		t.Fatalf("corrupt value not deleted")
	}
}

func TestGetMany(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctx := context.Background()
	other := model.Space{MaxX: 1, MaxY: 1, ObjectCount: 1}
	_ = s.Put(ctx, "a", sample)
	_ = s.Put(ctx, "b", other)

	fresh := New(s.remote, Options{Logger: s.log})
	_ = fresh.Put(ctx, "a", sample) // local hit for a, redis for b
	got, err := fresh.GetMany(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["a"] != sample || got["b"] != other {
		t.Fatalf("got %+v", got)
	}
}

func TestInvalidate(t *testing.T) {
	s, mr := newStore(t, Options{})
	ctx := context.Background()
	_ = s.Put(ctx, "a", sample)
	if err := s.Invalidate(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatalf("a still cached")
	}
	if mr.Exists(keys.SpaceKey("a")) {
		t.Fatalf("a still in redis")
	}
}

func TestLocalOnly(t *testing.T) {
	s := New(nil, Options{LRUSize: 1})
	ctx := context.Background()
	_ = s.Put(ctx, "a", sample)
	_ = s.Put(ctx, "b", sample)
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatalf("a should have been evicted")
	}
	if _, ok, _ := s.Get(ctx, "b"); !ok {
		t.Fatalf("b missing")
	}
}
