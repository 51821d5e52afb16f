package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Surface string

const (
	SurfaceHome            Surface = "HOME"
	SurfaceCuisineKorean   Surface = "CUISINE_KOREAN"
	SurfaceCuisineChinese  Surface = "CUISINE_CHINESE"
	SurfaceCuisineJapanese Surface = "CUISINE_JAPANESE"
	SurfaceCuisineWestern  Surface = "CUISINE_WESTERN"
	SurfaceCuisineDessert  Surface = "CUISINE_DESSERT"
)

type ItemType string

const (
	ItemTypeRecipe ItemType = "RECIPE"
	ItemTypeVideo  ItemType = "VIDEO"
)

type EventType string

const (
	EventTypeView          EventType = "VIEW"
	EventTypeCategoryClick EventType = "CATEGORY_CLICK"
	EventTypeLike          EventType = "LIKE"
)

var (
	ErrInvalidCursor         = errors.New("invalid cursor")
	ErrCandidateOpenFailed   = errors.New("candidate snapshot open failed")
	ErrCandidateSearchFailed = errors.New("candidate search failed")
	ErrStoreUnavailable      = errors.New("snapshot store unavailable")

	ErrCacheMiss = errors.New("cache miss")

	ErrInvalidSurface   = errors.New("invalid surface")
	ErrInvalidItemType  = errors.New("invalid item type")
	ErrInvalidEventType = errors.New("invalid event type")
)

func ParseSurface(s string) (Surface, error) {
	switch v := Surface(strings.ToUpper(strings.TrimSpace(s))); v {
	case SurfaceHome, SurfaceCuisineKorean, SurfaceCuisineChinese,
		SurfaceCuisineJapanese, SurfaceCuisineWestern, SurfaceCuisineDessert:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSurface, s)
	}
}

func ParseItemType(s string) (ItemType, error) {
	switch v := ItemType(strings.ToUpper(strings.TrimSpace(s))); v {
	case ItemTypeRecipe, ItemTypeVideo:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidItemType, s)
	}
}

func ParseEventType(s string) (EventType, error) {
	switch v := EventType(strings.ToUpper(strings.TrimSpace(s))); v {
	case EventTypeView, EventTypeCategoryClick, EventTypeLike:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEventType, s)
	}
}

// Profile is the per-request personalization profile. It lives for exactly
// one Recommend call and is never persisted.
type Profile struct {
	Keywords []string
	Channels []string
}

func (p Profile) Empty() bool {
	return len(p.Keywords) == 0 && len(p.Channels) == 0
}

// CandidatePage is one engine page. NextToken == "" means the session is
// exhausted.
type CandidatePage struct {
	Items     []string
	NextToken string
}

// SessionRecord pairs the engine snapshot handle with the recency-decay
// anchor fixed at session start, so decay scoring stays identical across
// every page of one session.
type SessionRecord struct {
	Handle string    `json:"handle"`
	Anchor time.Time `json:"anchor"`
}

type ImpressionRecord struct {
	RequestID uuid.UUID
	UserID    uuid.UUID
	ItemType  ItemType
	ItemID    string
	Surface   Surface
	Position  int64
	CreatedAt time.Time
}

type EventRecord struct {
	UserID    uuid.UUID
	ItemType  ItemType
	ItemID    string
	EventType EventType
	RequestID *uuid.UUID
	CreatedAt time.Time
}

type ItemMeta struct {
	ItemID  string
	Tags    []string
	Channel string
}

// RecommendPage is what the orchestrator returns to the transport layer.
type RecommendPage struct {
	Items      []string
	NextCursor string
}

// KVStore is the minimal TTL-capable key/value surface the session manager
// relies on. Get returns ErrCacheMiss for absent or expired keys; transport
// failures come back wrapped in ErrStoreUnavailable.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
}

// RecencyStore is the time-ordered per-(user, item type) recent-view set.
type RecencyStore interface {
	AddRecent(ctx context.Context, userID uuid.UUID, itemType ItemType, itemID string, at time.Time) error
	RecentSeeds(ctx context.Context, userID uuid.UUID, itemType ItemType, limit int) ([]string, error)
}

type RateLimiter interface {
	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}

// SnapshotSessions manages the engine snapshot lifecycle for one paging
// session, scoped by (request id, surface, item type).
type SnapshotSessions interface {
	IssueRequestID() uuid.UUID

	// Handle returns nil with no error when the session record is absent or
	// TTL-expired.
	Handle(ctx context.Context, requestID uuid.UUID, surface Surface, itemType ItemType) (*SessionRecord, error)
	SaveHandle(ctx context.Context, requestID uuid.UUID, surface Surface, itemType ItemType, rec SessionRecord) error
	RefreshHandle(ctx context.Context, requestID uuid.UUID, surface Surface, itemType ItemType) error
	DeleteHandle(ctx context.Context, requestID uuid.UUID, surface Surface, itemType ItemType) error

	// AllocatePositions atomically reserves n contiguous positions and
	// returns the start of the range.
	AllocatePositions(ctx context.Context, requestID uuid.UUID, n int) (int64, error)
	ClearPositions(ctx context.Context, requestID uuid.UUID) error
}

// CandidateSearcher wraps the engine's snapshot-pagination primitive.
type CandidateSearcher interface {
	OpenSnapshot(ctx context.Context) (string, error)
	Search(ctx context.Context, surface Surface, itemType ItemType, pageSize int, profile Profile, handle string, anchor time.Time, token string) (CandidatePage, error)
	CloseSnapshot(ctx context.Context, handle string) error
}

// InteractionRecorder logs impressions and events and serves recency seeds.
type InteractionRecorder interface {
	LogImpressions(ctx context.Context, userID uuid.UUID, surface Surface, itemType ItemType, items []string, requestID uuid.UUID, start int64) error
	LogEvent(ctx context.Context, userID uuid.UUID, itemType ItemType, itemID string, eventType EventType, requestID *uuid.UUID) error
	RecentSeeds(ctx context.Context, userID uuid.UUID, itemType ItemType, limit int) ([]string, error)
}

// ProfileBuilder turns recent seed item ids into a personalization profile.
type ProfileBuilder interface {
	Profile(ctx context.Context, seedIDs []string) (Profile, error)
}

// ItemMetaProvider is the read-only item-metadata boundary consumed by the
// profile builder.
type ItemMetaProvider interface {
	ItemMeta(ctx context.Context, ids []string) ([]ItemMeta, error)
}

// InteractionRepository is the durable append-only log boundary.
type InteractionRepository interface {
	InsertImpressions(ctx context.Context, recs []ImpressionRecord) error
	InsertEvent(ctx context.Context, rec EventRecord) error
}
