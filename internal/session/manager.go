package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/SWMChefTory/recommend-service/internal/domain"
	"github.com/google/uuid"
)

// Manager owns the paging-session state in the external store: the engine
// snapshot record per (request id, surface, item type) and the per-request
// position counter. Sessions are scoped by request id, so distinct sessions
// never contend and no locks are needed.
type Manager struct {
	store       domain.KVStore
	snapshotTTL time.Duration
	positionTTL time.Duration
}

func NewManager(store domain.KVStore, snapshotTTL, positionTTL time.Duration) *Manager {
	return &Manager{
		store:       store,
		snapshotTTL: snapshotTTL,
		positionTTL: positionTTL,
	}
}

func snapshotKey(requestID uuid.UUID, surface domain.Surface, itemType domain.ItemType) string {
	return "rec:snapshot:" + requestID.String() + ":" + string(surface) + ":" + string(itemType)
}

func positionKey(requestID uuid.UUID) string {
	return "rec:pos:" + requestID.String()
}

// IssueRequestID mints the session id for a first page.
func (m *Manager) IssueRequestID() uuid.UUID {
	return uuid.New()
}

// Handle returns nil with no error when the record is absent, TTL-expired,
// or unreadable; the orchestrator reopens in all three cases.
func (m *Manager) Handle(ctx context.Context, requestID uuid.UUID, surface domain.Surface, itemType domain.ItemType) (*domain.SessionRecord, error) {
	raw, err := m.store.Get(ctx, snapshotKey(requestID, surface, itemType))
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Handle == "" {
		return nil, nil
	}
	return &rec, nil
}

func (m *Manager) SaveHandle(ctx context.Context, requestID uuid.UUID, surface domain.Surface, itemType domain.ItemType, rec domain.SessionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, snapshotKey(requestID, surface, itemType), string(raw), m.snapshotTTL)
}

// RefreshHandle resets the handle TTL and keeps the position counter alive
// longer than the snapshot, so late position reads stay consistent.
func (m *Manager) RefreshHandle(ctx context.Context, requestID uuid.UUID, surface domain.Surface, itemType domain.ItemType) error {
	if err := m.store.Expire(ctx, snapshotKey(requestID, surface, itemType), m.snapshotTTL); err != nil {
		return err
	}
	return m.store.Expire(ctx, positionKey(requestID), m.positionTTL)
}

func (m *Manager) DeleteHandle(ctx context.Context, requestID uuid.UUID, surface domain.Surface, itemType domain.ItemType) error {
	return m.store.Del(ctx, snapshotKey(requestID, surface, itemType))
}

// AllocatePositions reserves n contiguous positions via one atomic
// increment; the pre-increment value is the start of the range, so the
// sequence per request id is gapless from 0 even under concurrent callers.
func (m *Manager) AllocatePositions(ctx context.Context, requestID uuid.UUID, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	key := positionKey(requestID)
	val, err := m.store.IncrBy(ctx, key, int64(n))
	if err != nil {
		return 0, err
	}
	start := val - int64(n)
	if start == 0 {
		// first allocation created the key
		_ = m.store.Expire(ctx, key, m.positionTTL)
	}
	return start, nil
}

func (m *Manager) ClearPositions(ctx context.Context, requestID uuid.UUID) error {
	return m.store.Del(ctx, positionKey(requestID))
}
