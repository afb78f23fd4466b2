package utils

import (
	"sync"
)

// OptionalLock is a reader/writer lock that does nothing when its owner is externally synchronized.
// It is safe to copy: copies share the same underlying mutex.
type OptionalLock struct {
	mutex *sync.RWMutex
}

// NewOptionalLock returns a lock backed by a real mutex if synchronized is true, and a no-op lock otherwise
func NewOptionalLock(synchronized bool) OptionalLock {
	if !synchronized {
		return OptionalLock{}
	}
	return OptionalLock{mutex: &sync.RWMutex{}}
}

func (l OptionalLock) Lock() {
	if l.mutex != nil {
		l.mutex.Lock()
	}
}

func (l OptionalLock) Unlock() {
	if l.mutex != nil {
		l.mutex.Unlock()
	}
}

func (l OptionalLock) RLock() {
	if l.mutex != nil {
		l.mutex.RLock()
	}
}

func (l OptionalLock) RUnlock() {
	if l.mutex != nil {
		l.mutex.RUnlock()
	}
}
