package interaction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SWMChefTory/recommend-service/internal/domain"
	"github.com/SWMChefTory/recommend-service/internal/pkg/logger"
)

// Recorder persists impressions and interaction events and keeps the
// recency set feeding personalization up to date. Durable writes go to the
// repository; the recency set lives in the cache and is best effort.
type Recorder struct {
	repo    domain.InteractionRepository
	recency domain.RecencyStore
	now     func() time.Time
}

func NewRecorder(repo domain.InteractionRepository, recency domain.RecencyStore) *Recorder {
	return &Recorder{
		repo:    repo,
		recency: recency,
		now:     time.Now,
	}
}

// LogImpressions records one served page. Positions are assigned
// contiguously from start in display order.
func (r *Recorder) LogImpressions(ctx context.Context, userID uuid.UUID, surface domain.Surface, itemType domain.ItemType, items []string, requestID uuid.UUID, start int64) error {
	if len(items) == 0 {
		return nil
	}
	now := r.now().UTC()
	recs := make([]domain.ImpressionRecord, 0, len(items))
	for i, itemID := range items {
		recs = append(recs, domain.ImpressionRecord{
			RequestID: requestID,
			UserID:    userID,
			ItemType:  itemType,
			ItemID:    itemID,
			Surface:   surface,
			Position:  start + int64(i),
			CreatedAt: now,
		})
	}
	return r.repo.InsertImpressions(ctx, recs)
}

// LogEvent appends one interaction event. VIEW events additionally feed the
// recency set; a recency write failure does not fail the event, the seed
// set just lags until the next view.
func (r *Recorder) LogEvent(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID string, eventType domain.EventType, requestID *uuid.UUID) error {
	now := r.now().UTC()
	if err := r.repo.InsertEvent(ctx, domain.EventRecord{
		UserID:    userID,
		ItemType:  itemType,
		ItemID:    itemID,
		EventType: eventType,
		RequestID: requestID,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	if eventType == domain.EventTypeView {
		if err := r.recency.AddRecent(ctx, userID, itemType, itemID, now); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).
				Str("user_id", userID.String()).
				Str("item_id", itemID).
				Msg("recency update failed")
		}
	}
	return nil
}

func (r *Recorder) RecentSeeds(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, limit int) ([]string, error) {
	return r.recency.RecentSeeds(ctx, userID, itemType, limit)
}
