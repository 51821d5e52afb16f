package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/SWMChefTory/recommend-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the durable interaction log: impressions (bulk, append-only),
// events (one row + outbox message per event), and the read-only recipe
// metadata consumed by the profile aggregator.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertImpressions bulk-loads one row per shown item. Impressions are a
// log, not a set: the same item shown again later lands at a new position.
func (r *Repository) InsertImpressions(ctx context.Context, recs []domain.ImpressionRecord) error {
	if len(recs) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, []any{
			rec.RequestID, rec.UserID, string(rec.ItemType), rec.ItemID,
			string(rec.Surface), rec.Position, rec.CreatedAt,
		})
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"impressions"},
		[]string{"request_id", "user_id", "item_type", "item_id", "surface", "position", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// InsertEvent writes the event row and its outbox message in one tx, the
// same transactional-outbox shape every producer in this system uses.
func (r *Repository) InsertEvent(ctx context.Context, rec domain.EventRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var requestID any
	if rec.RequestID != nil {
		requestID = *rec.RequestID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO events (user_id, item_type, item_id, event_type, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.UserID, string(rec.ItemType), rec.ItemID, string(rec.EventType), requestID, rec.CreatedAt)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]any{
		"user_id":     rec.UserID,
		"item_type":   rec.ItemType,
		"item_id":     rec.ItemID,
		"event_type":  rec.EventType,
		"request_id":  rec.RequestID,
		"occurred_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	routingKey := "interaction." + strings.ToLower(string(rec.EventType))
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (message_id, routing_key, payload, occurred_at, status)
		VALUES ($1, $2, $3, NOW(), 'pending')
	`, uuid.New(), routingKey, payload)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ItemMeta looks up tags and channel for the given items. Missing ids are
// simply absent from the result.
func (r *Repository) ItemMeta(ctx context.Context, ids []string) ([]domain.ItemMeta, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT item_id, tags, channel
		FROM recipe_meta
		WHERE item_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []domain.ItemMeta
	for rows.Next() {
		var m domain.ItemMeta
		if err := rows.Scan(&m.ItemID, &m.Tags, &m.Channel); err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}
