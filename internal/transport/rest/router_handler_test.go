package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SWMChefTory/recommend-service/internal/domain"
	"github.com/SWMChefTory/recommend-service/internal/security"
)

type fakeVerifier struct {
	claims security.TokenClaims
	err    error
}

func (f fakeVerifier) VerifyAccessToken(token string) (security.TokenClaims, error) {
	return f.claims, f.err
}

type fakeLimiter struct {
	allow bool
}

func (f fakeLimiter) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	return f.allow, nil
}

type fakeRecommender struct {
	recommendFn func(ctx context.Context, userID uuid.UUID, surface domain.Surface, itemType domain.ItemType, cursor string, pageSize int) (domain.RecommendPage, error)
	eventFn     func(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID string, eventType domain.EventType, requestID *uuid.UUID) error
}

func (f *fakeRecommender) Recommend(ctx context.Context, userID uuid.UUID, surface domain.Surface, itemType domain.ItemType, cursor string, pageSize int) (domain.RecommendPage, error) {
	return f.recommendFn(ctx, userID, surface, itemType, cursor, pageSize)
}

func (f *fakeRecommender) Event(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID string, eventType domain.EventType, requestID *uuid.UUID) error {
	return f.eventFn(ctx, userID, itemType, itemID, eventType, requestID)
}

func newTestRouter(rec *fakeRecommender, userID uuid.UUID) http.Handler {
	return NewRouter(RouterDeps{
		Limiter:          fakeLimiter{allow: true},
		Handler:          NewHandler(rec, 50),
		Verifier:         fakeVerifier{claims: security.TokenClaims{UserID: userID.String(), Role: "user"}},
		RateLimitEnabled: true,
		RateLimit:        100,
		RateLimitWindow:  time.Minute,
	})
}

func authedGet(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer token")
	return req
}

type dataEnvelope struct {
	Data struct {
		Items      []string `json:"items"`
		NextCursor string   `json:"next_cursor"`
		Msg        string   `json:"msg"`
	} `json:"data"`
}

type errEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func TestRecommendations_OK(t *testing.T) {
	userID := uuid.New()
	var gotSurface domain.Surface
	var gotLimit int
	rec := &fakeRecommender{
		recommendFn: func(_ context.Context, uid uuid.UUID, surface domain.Surface, itemType domain.ItemType, cursor string, pageSize int) (domain.RecommendPage, error) {
			require.Equal(t, userID, uid)
			gotSurface = surface
			gotLimit = pageSize
			require.Equal(t, domain.ItemTypeRecipe, itemType)
			require.Empty(t, cursor)
			return domain.RecommendPage{Items: []string{"r1", "r2"}, NextCursor: "c-next"}, nil
		},
	}

	w := httptest.NewRecorder()
	newTestRouter(rec, userID).ServeHTTP(w, authedGet("/api/v1/recommendations?surface=CUISINE_KOREAN&type=RECIPE&limit=2"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.SurfaceCuisineKorean, gotSurface)
	assert.Equal(t, 2, gotLimit)

	var body dataEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"r1", "r2"}, body.Data.Items)
	assert.Equal(t, "c-next", body.Data.NextCursor)
}

func TestRecommendations_TerminalPageOmitsCursor(t *testing.T) {
	userID := uuid.New()
	rec := &fakeRecommender{
		recommendFn: func(_ context.Context, _ uuid.UUID, _ domain.Surface, _ domain.ItemType, _ string, _ int) (domain.RecommendPage, error) {
			return domain.RecommendPage{Items: []string{"r9"}}, nil
		},
	}

	w := httptest.NewRecorder()
	newTestRouter(rec, userID).ServeHTTP(w, authedGet("/api/v1/recommendations?surface=HOME&type=RECIPE"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "next_cursor")
}

func TestRecommendations_LimitClampedToMax(t *testing.T) {
	userID := uuid.New()
	var gotLimit int
	rec := &fakeRecommender{
		recommendFn: func(_ context.Context, _ uuid.UUID, _ domain.Surface, _ domain.ItemType, _ string, pageSize int) (domain.RecommendPage, error) {
			gotLimit = pageSize
			return domain.RecommendPage{}, nil
		},
	}

	w := httptest.NewRecorder()
	newTestRouter(rec, userID).ServeHTTP(w, authedGet("/api/v1/recommendations?surface=HOME&type=RECIPE&limit=9999"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, gotLimit)
}

func TestRecommendations_DefaultLimit(t *testing.T) {
	userID := uuid.New()
	var gotLimit int
	rec := &fakeRecommender{
		recommendFn: func(_ context.Context, _ uuid.UUID, _ domain.Surface, _ domain.ItemType, _ string, pageSize int) (domain.RecommendPage, error) {
			gotLimit = pageSize
			return domain.RecommendPage{}, nil
		},
	}

	w := httptest.NewRecorder()
	newTestRouter(rec, userID).ServeHTTP(w, authedGet("/api/v1/recommendations?surface=HOME&type=RECIPE"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, gotLimit)
}

func TestRecommendations_InvalidSurface(t *testing.T) {
	rec := &fakeRecommender{}

	w := httptest.NewRecorder()
	newTestRouter(rec, uuid.New()).ServeHTTP(w, authedGet("/api/v1/recommendations?surface=NOPE&type=RECIPE"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "request.invalid", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestRecommendations_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid cursor", domain.ErrInvalidCursor, http.StatusBadRequest, "cursor.invalid"},
		{"snapshot open failed", domain.ErrCandidateOpenFailed, http.StatusBadGateway, "candidates.unavailable"},
		{"search failed", domain.ErrCandidateSearchFailed, http.StatusBadGateway, "candidates.unavailable"},
		{"store down", domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store.unavailable"},
		{"unknown", context.DeadlineExceeded, http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &fakeRecommender{
				recommendFn: func(_ context.Context, _ uuid.UUID, _ domain.Surface, _ domain.ItemType, _ string, _ int) (domain.RecommendPage, error) {
					return domain.RecommendPage{}, tc.err
				},
			}

			w := httptest.NewRecorder()
			newTestRouter(rec, uuid.New()).ServeHTTP(w, authedGet("/api/v1/recommendations?surface=HOME&type=RECIPE"))

			require.Equal(t, tc.status, w.Code)
			var body errEnvelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error.Code)
		})
	}
}

func TestRecommendations_Unauthorized(t *testing.T) {
	router := NewRouter(RouterDeps{
		Limiter:  fakeLimiter{allow: true},
		Handler:  NewHandler(&fakeRecommender{}, 50),
		Verifier: fakeVerifier{err: security.ErrTokenInvalid},
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/recommendations?surface=HOME&type=RECIPE", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedGet("/api/v1/recommendations?surface=HOME&type=RECIPE"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimit_Blocks(t *testing.T) {
	router := NewRouter(RouterDeps{
		Limiter:          fakeLimiter{allow: false},
		Handler:          NewHandler(&fakeRecommender{}, 50),
		Verifier:         fakeVerifier{claims: security.TokenClaims{UserID: uuid.NewString()}},
		RateLimitEnabled: true,
		RateLimit:        1,
		RateLimitWindow:  time.Minute,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedGet("/api/v1/recommendations?surface=HOME&type=RECIPE"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHealthz_OpenWithoutAuth(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(&fakeRecommender{}, uuid.New()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestEvent_OK(t *testing.T) {
	userID := uuid.New()
	requestID := uuid.New()
	var gotRequestID *uuid.UUID
	rec := &fakeRecommender{
		eventFn: func(_ context.Context, uid uuid.UUID, itemType domain.ItemType, itemID string, eventType domain.EventType, rid *uuid.UUID) error {
			require.Equal(t, userID, uid)
			require.Equal(t, domain.ItemTypeRecipe, itemType)
			require.Equal(t, "r1", itemID)
			require.Equal(t, domain.EventTypeView, eventType)
			gotRequestID = rid
			return nil
		},
	}

	payload, _ := json.Marshal(map[string]string{
		"item_type":  "RECIPE",
		"item_id":    "r1",
		"event_type": "VIEW",
		"request_id": requestID.String(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	newTestRouter(rec, userID).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotRequestID)
	assert.Equal(t, requestID, *gotRequestID)
}

func TestEvent_RequestIDOptional(t *testing.T) {
	userID := uuid.New()
	called := false
	rec := &fakeRecommender{
		eventFn: func(_ context.Context, _ uuid.UUID, _ domain.ItemType, _ string, _ domain.EventType, rid *uuid.UUID) error {
			called = true
			assert.Nil(t, rid)
			return nil
		},
	}

	payload, _ := json.Marshal(map[string]string{
		"item_type":  "RECIPE",
		"item_id":    "r1",
		"event_type": "LIKE",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer token")

	w := httptest.NewRecorder()
	newTestRouter(rec, userID).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}

func TestEvent_BadRequest(t *testing.T) {
	cases := []struct {
		name string
		body map[string]string
	}{
		{"unknown item_type", map[string]string{"item_type": "SONG", "item_id": "r1", "event_type": "VIEW"}},
		{"unknown event_type", map[string]string{"item_type": "RECIPE", "item_id": "r1", "event_type": "HOVER"}},
		{"empty item_id", map[string]string{"item_type": "RECIPE", "item_id": " ", "event_type": "VIEW"}},
		{"bad request_id", map[string]string{"item_type": "RECIPE", "item_id": "r1", "event_type": "VIEW", "request_id": "nope"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(payload))
			req.Header.Set("Authorization", "Bearer token")

			w := httptest.NewRecorder()
			newTestRouter(&fakeRecommender{}, uuid.New()).ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
