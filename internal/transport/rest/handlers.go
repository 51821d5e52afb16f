package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/SWMChefTory/recommend-service/internal/domain"
	appCtx "github.com/SWMChefTory/recommend-service/internal/pkg/context"
	"github.com/SWMChefTory/recommend-service/internal/transport/rest/response"
)

const defaultPageSize = 20

// Recommender is the service surface the transport layer depends on.
type Recommender interface {
	Recommend(ctx context.Context, userID uuid.UUID, surface domain.Surface, itemType domain.ItemType, cursor string, pageSize int) (domain.RecommendPage, error)
	Event(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID string, eventType domain.EventType, requestID *uuid.UUID) error
}

type Handler struct {
	svc         Recommender
	maxPageSize int
}

func NewHandler(svc Recommender, maxPageSize int) *Handler {
	return &Handler{svc: svc, maxPageSize: maxPageSize}
}

type recommendationsBody struct {
	Items      []string `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	q := r.URL.Query()
	surface, err := domain.ParseSurface(q.Get("surface"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid surface", map[string]string{
			"surface": "unknown surface",
		})
		return
	}
	itemType, err := domain.ParseItemType(q.Get("type"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid type", map[string]string{
			"type": "unknown item type",
		})
		return
	}

	limit := h.parseLimit(q.Get("limit"))
	cursor := strings.TrimSpace(q.Get("cursor"))

	page, err := h.svc.Recommend(r.Context(), auth.UserID, surface, itemType, cursor, limit)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	items := page.Items
	if items == nil {
		items = []string{}
	}
	response.Data(w, http.StatusOK, recommendationsBody{
		Items:      items,
		NextCursor: page.NextCursor,
	})
}

func (h *Handler) Event(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		ItemType  string `json:"item_type"`
		ItemID    string `json:"item_id"`
		EventType string `json:"event_type"`
		RequestID string `json:"request_id"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	itemType, err := domain.ParseItemType(req.ItemType)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid item_type", map[string]string{
			"item_type": "unknown item type",
		})
		return
	}
	eventType, err := domain.ParseEventType(req.EventType)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid event_type", map[string]string{
			"event_type": "unknown event type",
		})
		return
	}
	if strings.TrimSpace(req.ItemID) == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid item_id", map[string]string{
			"item_id": "must be non-empty",
		})
		return
	}

	var requestID *uuid.UUID
	if s := strings.TrimSpace(req.RequestID); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid request_id", map[string]string{
				"request_id": "must be a valid uuid",
			})
			return
		}
		requestID = &id
	}

	if err := h.svc.Event(r.Context(), auth.UserID, itemType, strings.TrimSpace(req.ItemID), eventType, requestID); err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]string{
		"msg": "recorded",
	})
}

func (h *Handler) parseLimit(raw string) int {
	limit := defaultPageSize
	if s := strings.TrimSpace(raw); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.maxPageSize {
		limit = h.maxPageSize
	}
	return limit
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCursor):
		fail(w, r, http.StatusBadRequest, "cursor.invalid", err.Error(), nil)
		return
	case errors.Is(err, domain.ErrInvalidSurface) ||
		errors.Is(err, domain.ErrInvalidItemType) ||
		errors.Is(err, domain.ErrInvalidEventType):
		fail(w, r, http.StatusBadRequest, "request.invalid", err.Error(), nil)
		return
	case errors.Is(err, domain.ErrCandidateOpenFailed) || errors.Is(err, domain.ErrCandidateSearchFailed):
		fail(w, r, http.StatusBadGateway, "candidates.unavailable", err.Error(), nil)
		return
	case errors.Is(err, domain.ErrStoreUnavailable):
		fail(w, r, http.StatusServiceUnavailable, "store.unavailable", err.Error(), nil)
		return
	default:
		// Do not leak internal details.
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
		return
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}
