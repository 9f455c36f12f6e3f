// Package crypto holds sensitive material (seeds) in locked memory and
// guarantees it is wiped when no longer needed.
//
//nolint:revive // Internal package name is intentional
package crypto

import (
	"errors"
	"runtime"
	"sync"
)

// ErrDestroyed is returned when a destroyed buffer is used.
var ErrDestroyed = errors.New("secure buffer destroyed")

// SecureBytes wraps a sensitive byte slice. The memory is mlocked when
// the platform allows it and zeroed by Destroy or, as a last resort, by
// the finalizer.
type SecureBytes struct {
	mu     sync.Mutex
	data   []byte
	locked bool
}

// NewSecureBytes allocates size bytes of (possibly locked) memory.
func NewSecureBytes(size int) *SecureBytes {
	sb := &SecureBytes{data: make([]byte, size)}
	sb.locked = mlock(sb.data)

	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})
	return sb
}

// TakeSecureBytes copies data into secure memory and zeroes the source.
func TakeSecureBytes(data []byte) *SecureBytes {
	sb := NewSecureBytes(len(data))
	copy(sb.data, data)
	clear(data)
	return sb
}

// Use calls fn with the protected bytes. fn must not retain the slice.
func (s *SecureBytes) Use(fn func([]byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return ErrDestroyed
	}
	return fn(s.data)
}

// IsLocked reports whether the memory is mlocked.
func (s *SecureBytes) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Len returns the length of the data, or 0 after Destroy.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Destroy zeroes and unlocks the memory. Safe to call multiple times.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	clear(s.data)
	if s.locked {
		munlock(s.data)
		s.locked = false
	}
	s.data = nil
	runtime.SetFinalizer(s, nil)
}
