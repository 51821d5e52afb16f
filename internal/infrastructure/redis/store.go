package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/SWMChefTory/recommend-service/internal/domain"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Store backs the snapshot session manager (string keys + atomic counters)
// and the per-user recency sets. All cross-request coordination in this
// service goes through here; there is no in-process shared state.
type Store struct {
	Client *goredis.Client

	// RecentWindow bounds what recency reads return; RecentTTL reaps the
	// whole set after inactivity.
	RecentWindow time.Duration
	RecentTTL    time.Duration
}

func New(addr, pass string, db int) *Store {
	rdb := goredis.NewClient(&goredis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Store{
		Client:       rdb,
		RecentWindow: 30 * 24 * time.Hour,
		RecentTTL:    60 * 24 * time.Hour,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.Client.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.Client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", domain.ErrCacheMiss
		}
		return "", fmt.Errorf("%w: get %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	if err := s.Client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.Client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: expire %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Del is idempotent; deleting an absent key is not an error.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	val, err := s.Client.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: incrby %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return val, nil
}

func recentKey(userID uuid.UUID, itemType domain.ItemType) string {
	return "rec:recent:" + userID.String() + ":" + string(itemType)
}

// AddRecent scores the item at the event time, so re-adding an existing
// member moves it to the front. Every write prunes the window and resets the
// set TTL.
func (s *Store) AddRecent(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID string, at time.Time) error {
	key := recentKey(userID, itemType)
	cutoff := at.Add(-s.RecentWindow).UnixMilli()

	pipe := s.Client.TxPipeline()
	pipe.ZAdd(ctx, key, goredis.Z{Score: float64(at.UnixMilli()), Member: itemID})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, key, s.RecentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: recent add %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

// RecentSeeds returns the most recently viewed items, newest first, pruning
// the 30-day window at read time first.
func (s *Store) RecentSeeds(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	key := recentKey(userID, itemType)
	cutoff := time.Now().Add(-s.RecentWindow).UnixMilli()

	if err := s.Client.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("%w: recent prune %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	items, err := s.Client.ZRevRange(ctx, key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: recent read %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return items, nil
}

// AllowRequest: simple fixed window rate limit, fail open.
func (s *Store) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + ip
	count, err := s.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil // fail open
	}
	if count == 1 {
		_ = s.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}
