package provision

import (
	"context"
	"sync"
)

// pathLocks hands out one lock per target folder. Entries are dropped once nobody holds or waits.
type pathLocks struct {
	mu sync.Mutex
	m  map[string]*pathLock
}

type pathLock struct {
	ch   chan struct{}
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{m: make(map[string]*pathLock)}
}

// acquire blocks until key is free or ctx is done.
func (l *pathLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	pl, ok := l.m[key]
	if !ok {
		pl = &pathLock{ch: make(chan struct{}, 1)}
		l.m[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	select {
	case pl.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, pl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-pl.ch
			l.unref(key, pl)
		})
	}, nil
}

func (l *pathLocks) unref(key string, pl *pathLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.m, key)
	}
}

func (l *pathLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
