package locks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a conversation lock lives without a refresh
const DefaultTTL = 600 * time.Second

const keyPrefix = "conv_lock:"

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Key returns the store key of a conversation lock
func Key(conversationID uint) string {
	return keyPrefix + strconv.FormatUint(uint64(conversationID), 10)
}

// Manager grants exclusive, expiring reply rights on conversations.
// All state lives in Redis so every process sees the same owner.
type Manager struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewManager creates a lock manager. A non-positive ttl selects DefaultTTL.
func NewManager(client redis.UniversalClient, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{client: client, ttl: ttl}
}

// TTL returns the lifetime applied on acquire and refresh
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Acquire sets the lock to principalID if nobody holds it.
// It returns false when another holder (or the caller) already owns it.
func (m *Manager) Acquire(ctx context.Context, conversationID, principalID uint) (bool, error) {
	ok, err := m.client.SetNX(ctx, Key(conversationID), formatOwner(principalID), m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return ok, nil
}

// Refresh extends the lock TTL only when principalID is the current holder
func (m *Manager) Refresh(ctx context.Context, conversationID, principalID uint) (bool, error) {
	n, err := refreshScript.Run(ctx, m.client,
		[]string{Key(conversationID)},
		formatOwner(principalID), m.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("refresh lock: %w", err)
	}
	return n == 1, nil
}

// Owner returns the current holder. ok is false when the lock is free.
func (m *Manager) Owner(ctx context.Context, conversationID uint) (uint, bool, error) {
	value, err := m.client.Get(ctx, Key(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read lock owner: %w", err)
	}

	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid lock owner %q: %w", value, err)
	}
	return uint(id), true, nil
}

// Release deletes the lock only when principalID is the current holder
func (m *Manager) Release(ctx context.Context, conversationID, principalID uint) (bool, error) {
	n, err := releaseScript.Run(ctx, m.client,
		[]string{Key(conversationID)},
		formatOwner(principalID),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("release lock: %w", err)
	}
	return n == 1, nil
}

// Owners resolves the holders of several conversations in one round trip.
// Free conversations are absent from the result.
func (m *Manager) Owners(ctx context.Context, conversationIDs []uint) (map[uint]uint, error) {
	owners := make(map[uint]uint, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return owners, nil
	}

	keys := make([]string, len(conversationIDs))
	for i, id := range conversationIDs {
		keys[i] = Key(id)
	}

	values, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read lock owners: %w", err)
	}

	for i, value := range values {
		s, ok := value.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			continue
		}
		owners[conversationIDs[i]] = uint(id)
	}
	return owners, nil
}

func formatOwner(principalID uint) string {
	return strconv.FormatUint(uint64(principalID), 10)
}
