package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SWMChefTory/recommend-service/internal/audit"
	"github.com/SWMChefTory/recommend-service/internal/cursor"
	"github.com/SWMChefTory/recommend-service/internal/domain"
	"github.com/SWMChefTory/recommend-service/internal/pkg/logger"
)

// Service orchestrates one recommendation page: session resolution,
// personalization, candidate retrieval, position allocation and impression
// logging. Paging is cursor-driven; all pages of one session read from the
// same engine snapshot so ranks stay stable while the user scrolls.
type Service struct {
	sessions     domain.SnapshotSessions
	searcher     domain.CandidateSearcher
	interactions domain.InteractionRecorder
	profiles     domain.ProfileBuilder
	audit        *audit.Logger
	seedLimit    int
	now          func() time.Time
}

func New(
	sessions domain.SnapshotSessions,
	searcher domain.CandidateSearcher,
	interactions domain.InteractionRecorder,
	profiles domain.ProfileBuilder,
	auditLog *audit.Logger,
	seedLimit int,
) *Service {
	return &Service{
		sessions:     sessions,
		searcher:     searcher,
		interactions: interactions,
		profiles:     profiles,
		audit:        auditLog,
		seedLimit:    seedLimit,
		now:          time.Now,
	}
}

// Recommend serves one page. A blank cursor starts a new session; a cursor
// from a previous page continues it. An empty NextCursor on the returned
// page means the session is exhausted and its resources are already torn
// down, so the cursor must not be reused.
func (s *Service) Recommend(ctx context.Context, userID uuid.UUID, surface domain.Surface, itemType domain.ItemType, pageCursor string, pageSize int) (domain.RecommendPage, error) {
	var (
		requestID uuid.UUID
		token     string
	)
	if pageCursor == "" {
		requestID = s.sessions.IssueRequestID()
	} else {
		var err error
		requestID, token, err = cursor.Decode(pageCursor)
		if err != nil {
			return domain.RecommendPage{}, err
		}
	}

	rec, err := s.sessions.Handle(ctx, requestID, surface, itemType)
	if err != nil {
		return domain.RecommendPage{}, err
	}
	if rec == nil {
		handle, err := s.searcher.OpenSnapshot(ctx)
		if err != nil {
			return domain.RecommendPage{}, err
		}
		fresh := domain.SessionRecord{Handle: handle, Anchor: s.now().UTC()}
		if err := s.sessions.SaveHandle(ctx, requestID, surface, itemType, fresh); err != nil {
			s.closeQuietly(ctx, handle)
			return domain.RecommendPage{}, err
		}
		if pageCursor == "" {
			s.audit.SessionOpened(ctx, requestID, surface, itemType, handle)
		} else {
			// The handle TTL lapsed mid-session; reopening keeps the cursor
			// usable at the cost of a rank shuffle on this boundary.
			s.audit.SessionReopened(ctx, requestID, surface, itemType)
		}
		rec = &fresh
	}

	profile := s.buildProfile(ctx, userID, itemType)

	page, err := s.searcher.Search(ctx, surface, itemType, pageSize, profile, rec.Handle, rec.Anchor, token)
	if err != nil {
		return domain.RecommendPage{}, err
	}

	if len(page.Items) > 0 {
		start, err := s.sessions.AllocatePositions(ctx, requestID, len(page.Items))
		if err != nil {
			return domain.RecommendPage{}, err
		}
		if err := s.interactions.LogImpressions(ctx, userID, surface, itemType, page.Items, requestID, start); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).
				Str("request_id", requestID.String()).
				Msg("impression logging failed")
		} else {
			s.audit.ImpressionsRecorded(ctx, requestID, userID, len(page.Items), start)
		}
	}

	if page.NextToken == "" {
		s.teardown(ctx, requestID, surface, itemType, rec.Handle)
		return domain.RecommendPage{Items: page.Items}, nil
	}

	if err := s.sessions.RefreshHandle(ctx, requestID, surface, itemType); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).
			Str("request_id", requestID.String()).
			Msg("session refresh failed")
	}
	return domain.RecommendPage{
		Items:      page.Items,
		NextCursor: cursor.Encode(requestID, page.NextToken),
	}, nil
}

// Event records one user interaction.
func (s *Service) Event(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID string, eventType domain.EventType, requestID *uuid.UUID) error {
	if err := s.interactions.LogEvent(ctx, userID, itemType, itemID, eventType, requestID); err != nil {
		return err
	}
	s.audit.EventRecorded(ctx, userID, eventType, itemID)
	return nil
}

// buildProfile is best effort end to end: seed lookup or metadata failures
// fall back to an unpersonalized page.
func (s *Service) buildProfile(ctx context.Context, userID uuid.UUID, itemType domain.ItemType) domain.Profile {
	seeds, err := s.interactions.RecentSeeds(ctx, userID, itemType, s.seedLimit)
	if err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Msg("recent seed lookup failed; serving unpersonalized")
		return domain.Profile{}
	}
	profile, err := s.profiles.Profile(ctx, seeds)
	if err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Msg("profile build failed; serving unpersonalized")
		return domain.Profile{}
	}
	return profile
}

// teardown releases session resources after the terminal page. Each step is
// independent so a failure in one does not strand the others; the TTLs are
// the backstop for anything that slips through.
func (s *Service) teardown(ctx context.Context, requestID uuid.UUID, surface domain.Surface, itemType domain.ItemType, handle string) {
	s.closeQuietly(ctx, handle)
	if err := s.sessions.DeleteHandle(ctx, requestID, surface, itemType); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("request_id", requestID.String()).Msg("session handle delete failed")
	}
	if err := s.sessions.ClearPositions(ctx, requestID); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("request_id", requestID.String()).Msg("position counter clear failed")
	}
	s.audit.SessionClosed(ctx, requestID, surface, itemType)
}

func (s *Service) closeQuietly(ctx context.Context, handle string) {
	if err := s.searcher.CloseSnapshot(ctx, handle); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Msg("snapshot close failed; engine keep-alive will reap it")
	}
}
