package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SWMChefTory/recommend-service/internal/domain"
	reqctx "github.com/SWMChefTory/recommend-service/internal/pkg/context"
)

// Logger provides structured audit logging for business events
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// SessionOpened logs when a first page opens a new snapshot session
func (l *Logger) SessionOpened(ctx context.Context, requestID uuid.UUID, surface domain.Surface, itemType domain.ItemType, handle string) {
	l.log.Info().
		Str("action", "session_opened").
		Str("request_id", requestID.String()).
		Str("surface", string(surface)).
		Str("item_type", string(itemType)).
		Str("snapshot_handle", truncateHandle(handle)).
		Str("trace_id", getTraceID(ctx)).
		Msg("Snapshot session opened")
}

// SessionReopened logs when a continuation page found its snapshot handle
// expired and a fresh snapshot had to be opened under the same request ID.
// Ordering stability across the reopen boundary is not guaranteed, so this
// is logged at warn level.
func (l *Logger) SessionReopened(ctx context.Context, requestID uuid.UUID, surface domain.Surface, itemType domain.ItemType) {
	l.log.Warn().
		Str("action", "session_reopened").
		Str("request_id", requestID.String()).
		Str("surface", string(surface)).
		Str("item_type", string(itemType)).
		Str("trace_id", getTraceID(ctx)).
		Msg("Snapshot handle expired mid-session; reopened")
}

// SessionClosed logs when a terminal page tears a session down
func (l *Logger) SessionClosed(ctx context.Context, requestID uuid.UUID, surface domain.Surface, itemType domain.ItemType) {
	l.log.Info().
		Str("action", "session_closed").
		Str("request_id", requestID.String()).
		Str("surface", string(surface)).
		Str("item_type", string(itemType)).
		Str("trace_id", getTraceID(ctx)).
		Msg("Snapshot session closed")
}

// ImpressionsRecorded logs a served page with its allocated position range
func (l *Logger) ImpressionsRecorded(ctx context.Context, requestID, userID uuid.UUID, count int, startPosition int64) {
	l.log.Info().
		Str("action", "impressions_recorded").
		Str("request_id", requestID.String()).
		Str("user_id", userID.String()).
		Int("count", count).
		Int64("start_position", startPosition).
		Str("trace_id", getTraceID(ctx)).
		Msg("Impressions recorded")
}

// EventRecorded logs an accepted interaction event
func (l *Logger) EventRecorded(ctx context.Context, userID uuid.UUID, eventType domain.EventType, itemID string) {
	l.log.Info().
		Str("action", "event_recorded").
		Str("user_id", userID.String()).
		Str("event_type", string(eventType)).
		Str("item_id", itemID).
		Str("trace_id", getTraceID(ctx)).
		Msg("Interaction event recorded")
}

// truncateHandle keeps audit lines readable; PIT handles run to hundreds of
// characters and only the prefix is needed to correlate.
func truncateHandle(handle string) string {
	if len(handle) > 24 {
		return handle[:24]
	}
	return handle
}

// getTraceID extracts the request-scoped trace ID from context if available
func getTraceID(ctx context.Context) string {
	return reqctx.GetRequestID(ctx)
}
