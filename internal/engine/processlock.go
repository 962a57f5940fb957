package engine

import (
	"sync"
	"time"

	"github.com/petrijr/flume/pkg/api"
)

// defaultLockTimeout bounds process lock acquisition. A failure to acquire
// within this window is fatal to the operation and never retried.
const defaultLockTimeout = 30 * time.Second

// processLock is the read/write lock shared by one operation's round
// execution, synchronization callbacks and configuration mutation. Rounds
// and sync callbacks hold it for reading; configuration writes (and sync
// callbacks under the pool strategy) hold it for writing.
type processLock struct {
	mu      sync.RWMutex
	timeout time.Duration
}

func newProcessLock() *processLock {
	return &processLock{timeout: defaultLockTimeout}
}

// lock acquires the write lock, failing with ErrLockTimeout after the
// configured bound. On timeout the lock is handed back as soon as the
// blocked acquisition completes.
func (l *processLock) lock() error {
	done := make(chan struct{})
	go func() {
		l.mu.Lock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(l.timeout):
		go func() {
			<-done
			l.mu.Unlock()
		}()
		return api.ErrLockTimeout
	}
}

func (l *processLock) unlock() { l.mu.Unlock() }

// rlock acquires the read lock with the same timeout discipline as lock.
func (l *processLock) rlock() error {
	done := make(chan struct{})
	go func() {
		l.mu.RLock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(l.timeout):
		go func() {
			<-done
			l.mu.RUnlock()
		}()
		return api.ErrLockTimeout
	}
}

func (l *processLock) runlock() { l.mu.RUnlock() }
