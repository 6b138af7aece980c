package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// jobDedupe remembers recently completed job ids so that redelivered
// messages are not scored twice.
type jobDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, struct{}]
}

func newJobDedupe(size int) *jobDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, struct{}](size)
	return &jobDedupe{lru: c}
}

func (d *jobDedupe) seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lru.Contains(id)
}

func (d *jobDedupe) done(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lru.Add(id, struct{}{})
}
