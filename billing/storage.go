package billing

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Storage.Load for keys that were never saved.
var ErrNotFound = errors.New("session key not found")

// Storage is the key/value capability a Session persists through.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Session keys.
const (
	KeySelectedPlan        = "selected_plan"
	KeyPaymentPendingEmail = "payment_pending_email"
	KeyPaymentPendingPlan  = "payment_pending_plan"
	KeyActivePlan          = "active_plan"
	KeyUsageCounters       = "usage_counters"
	KeyLastUsageUpdate     = "last_usage_update"
	KeyUserLoggedIn        = "user_logged_in"
	KeyUserEmail           = "user_email"
	KeyUserID              = "user_id"
	KeyAccessToken         = "access_token"
)

var allKeys = []string{
	KeySelectedPlan,
	KeyPaymentPendingEmail,
	KeyPaymentPendingPlan,
	KeyActivePlan,
	KeyUsageCounters,
	KeyLastUsageUpdate,
	KeyUserLoggedIn,
	KeyUserEmail,
	KeyUserID,
	KeyAccessToken,
}

// MemoryStorage keeps session state in process memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: map[string][]byte{}}
}

func (m *MemoryStorage) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStorage) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
