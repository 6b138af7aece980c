package kafkaconsumer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/spatial-heatmap/internal/cache/redisstore"
	"github.com/mohammed-shakir/spatial-heatmap/internal/cache/spacestore"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/invalidation"
)

type fakeTarget struct {
	failFirst atomic.Bool
	mu        sync.Mutex
	seen      [][]string
}

func (f *fakeTarget) Invalidate(_ context.Context, ids ...string) error {
	f.mu.Lock()
	f.seen = append(f.seen, ids)
	f.mu.Unlock()
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return errors.New("boom")
	}
	return nil
}

type sess struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Context() context.Context { return s.ctx }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}

type claim struct {
	sarama.ConsumerGroupClaim
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func eventBytes(t *testing.T, ids ...string) []byte {
	t.Helper()
	b, err := json.Marshal(invalidation.Event{
		Version: 1, Op: invalidation.OpUpdate, Datasets: ids, TS: time.Now().UTC(), Source: "loader",
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newConsumerForTest(target Invalidator) *Consumer {
	cfg := Config{Brokers: []string{"x"}, Topic: "dataset-invalidation", GroupID: "g"}
	return New(cfg, quiet(), nil, target)
}

func TestConsumeClaim_OrderAndCommitAfterWork(t *testing.T) {
	ft := &fakeTarget{}
	c := newConsumerForTest(ft)

	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Topic: "dataset-invalidation", Offset: 10, Value: eventBytes(t, "a")}
	ch <- &sarama.ConsumerMessage{Topic: "dataset-invalidation", Offset: 11, Value: eventBytes(t, "b", "a", "b")}
	close(ch)

	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if !slices.Equal(s.marked, []int64{10, 11}) {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if len(ft.seen) != 2 || !slices.Equal(ft.seen[1], []string{"b", "a"}) {
		t.Fatalf("invalidated=%v", ft.seen)
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	ft := &fakeTarget{}
	ft.failFirst.Store(true)
	c := newConsumerForTest(ft)
	ctx := context.Background()

	msg := &sarama.ConsumerMessage{Topic: "dataset-invalidation", Offset: 5, Value: eventBytes(t, "a")}
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if !slices.Equal(s.marked, []int64{5}) {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
}

func TestFailure_StopsClaimWithoutMarking(t *testing.T) {
	ft := &fakeTarget{}
	ft.failFirst.Store(true)
	c := newConsumerForTest(ft)

	s := &sess{ctx: context.Background()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Offset: 1, Value: eventBytes(t, "a")}
	ch <- &sarama.ConsumerMessage{Offset: 2, Value: eventBytes(t, "b")}
	close(ch)

	err := (&groupHandler{process: c.ProcessOne}).ConsumeClaim(s, &claim{msgs: ch})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(s.marked) != 0 {
		t.Fatalf("marked=%v want none", s.marked)
	}
}

func TestProcessOne_SkipsBadEvents(t *testing.T) {
	ft := &fakeTarget{}
	c := newConsumerForTest(ft)
	ctx := context.Background()

	bad := []*sarama.ConsumerMessage{
		{Offset: 1, Value: []byte("{not json")},
		{Offset: 2, Value: []byte(`{"version":1,"op":"update","datasets":[],"ts":"2025-10-26T12:00:00Z"}`)},
		{Offset: 3, Value: []byte(`{"version":3,"op":"update","datasets":["a"],"ts":"2025-10-26T12:00:00Z"}`)},
	}
	for _, m := range bad {
		if err := c.ProcessOne(ctx, m); err != nil {
			t.Fatalf("offset %d: %v", m.Offset, err)
		}
	}
	if len(ft.seen) != 0 {
		t.Fatalf("bad events reached the target: %v", ft.seen)
	}
}

func TestProcessOne_AuditRecord(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	c := New(Config{}, quiet(), &zl, &fakeTarget{})

	if err := c.ProcessOne(context.Background(), &sarama.ConsumerMessage{Value: eventBytes(t, "parcels")}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`"component":"space_invalidation"`, `"datasets":["parcels"]`, `"op":"update"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("audit record missing %s: %s", want, out)
		}
	}
}

func TestProcessOne_EvictsCachedSpace(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	ctx := context.Background()
	st := spacestore.New(rc, spacestore.Options{TTL: time.Minute, Logger: quiet()})
	sp := model.Space{MinX: 0, MinY: 0, MaxX: 4, MaxY: 2, ObjectCount: 3}
	for _, id := range []string{"a", "b"} {
		if err := st.Put(ctx, id, sp); err != nil {
			t.Fatal(err)
		}
	}

	c := newConsumerForTest(st)
	if err := c.ProcessOne(ctx, &sarama.ConsumerMessage{Value: eventBytes(t, "a")}); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := st.Get(ctx, "a"); err != nil || ok {
		t.Fatalf("a still cached ok=%v err=%v", ok, err)
	}
	if got, ok, err := st.Get(ctx, "b"); err != nil || !ok || got != sp {
		t.Fatalf("b lost: %+v ok=%v err=%v", got, ok, err)
	}
}
