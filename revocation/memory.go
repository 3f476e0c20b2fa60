package revocation

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is a process-local Registry.
type Memory struct {
	entries *expirable.LRU[string, time.Time]
	now     func() time.Time
}

// NewMemory returns a Memory registry. maxTTL bounds how long any entry is
// retained and should be the access-token lifetime. now defaults to time.Now.
func NewMemory(maxTTL time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		entries: expirable.NewLRU[string, time.Time](0, nil, maxTTL),
		now:     now,
	}
}

func (m *Memory) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	if !expiresAt.After(m.now()) {
		return nil
	}
	m.entries.Add(Fingerprint(token), expiresAt)
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, token string) (bool, error) {
	key := Fingerprint(token)
	expiresAt, ok := m.entries.Get(key)
	if !ok {
		return false, nil
	}
	if !expiresAt.After(m.now()) {
		m.entries.Remove(key)
		return false, nil
	}
	return true, nil
}

// Len reports the number of retained entries.
func (m *Memory) Len() int {
	return m.entries.Len()
}
