package elasticsearch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/SWMChefTory/recommend-service/internal/domain"
	elasticsearch "github.com/elastic/go-elasticsearch/v8"
)

const keepAlive = "3m"

// Search wraps the engine's point-in-time pagination primitive. A session's
// pages all run against one frozen PIT handle; ordering is score descending
// with item id ascending as tie-break, so re-issuing the same handle and
// continuation token always yields the same next page.
type Search struct {
	es    *elasticsearch.Client
	index string
}

func New(addrs []string, user, pass, index string) (*Search, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  user,
		Password:  pass,
	})
	if err != nil {
		return nil, err
	}
	return &Search{es: es, index: index}, nil
}

// NewWithClient is the test seam.
func NewWithClient(es *elasticsearch.Client, index string) *Search {
	return &Search{es: es, index: index}
}

func (s *Search) OpenSnapshot(ctx context.Context) (string, error) {
	res, err := s.es.OpenPointInTime([]string{s.index}, keepAlive,
		s.es.OpenPointInTime.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCandidateOpenFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return "", fmt.Errorf("%w: %s", domain.ErrCandidateOpenFailed, res.Status())
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil || out.ID == "" {
		return "", fmt.Errorf("%w: no pit id in response", domain.ErrCandidateOpenFailed)
	}
	return out.ID, nil
}

func (s *Search) Search(ctx context.Context, surface domain.Surface, itemType domain.ItemType, pageSize int, profile domain.Profile, handle string, anchor time.Time, token string) (domain.CandidatePage, error) {
	body, err := buildQuery(surface, itemType, pageSize, profile, handle, anchor, token)
	if err != nil {
		return domain.CandidatePage{}, err
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return domain.CandidatePage{}, fmt.Errorf("%w: %v", domain.ErrCandidateSearchFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		// covers snapshot expiry as well; the engine rejects stale pit ids
		return domain.CandidatePage{}, fmt.Errorf("%w: %s", domain.ErrCandidateSearchFailed, res.Status())
	}

	var out struct {
		Hits struct {
			Hits []struct {
				ID     string `json:"_id"`
				Source struct {
					ItemID string `json:"item_id"`
				} `json:"_source"`
				Sort []any `json:"sort"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return domain.CandidatePage{}, fmt.Errorf("%w: bad response body: %v", domain.ErrCandidateSearchFailed, err)
	}

	page := domain.CandidatePage{}
	for _, h := range out.Hits.Hits {
		id := h.Source.ItemID
		if id == "" {
			id = h.ID
		}
		page.Items = append(page.Items, id)
	}

	// a short page means the session is exhausted
	if len(out.Hits.Hits) == pageSize {
		last := out.Hits.Hits[len(out.Hits.Hits)-1]
		tok, err := encodeToken(last.Sort)
		if err != nil {
			return domain.CandidatePage{}, fmt.Errorf("%w: %v", domain.ErrCandidateSearchFailed, err)
		}
		page.NextToken = tok
	}
	return page, nil
}

// CloseSnapshot releases the PIT. Callers treat failures as advisory; the
// engine reaps unclosed handles by keep-alive anyway.
func (s *Search) CloseSnapshot(ctx context.Context, handle string) error {
	body, _ := json.Marshal(map[string]string{"id": handle})
	res, err := s.es.ClosePointInTime(
		s.es.ClosePointInTime.WithContext(ctx),
		s.es.ClosePointInTime.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("close pit: %s", res.Status())
	}
	return nil
}

// buildQuery assembles the function_score search. The gauss recency decay is
// anchored at the session's fixed anchor timestamp, never "now", so items do
// not reorder between pages of one session.
func buildQuery(surface domain.Surface, itemType domain.ItemType, pageSize int, profile domain.Profile, handle string, anchor time.Time, token string) ([]byte, error) {
	functions := []map[string]any{}
	if len(profile.Keywords) > 0 {
		functions = append(functions, map[string]any{
			"filter": map[string]any{"terms": map[string]any{"tags": profile.Keywords}},
			"weight": 1.5,
		})
	}
	if len(profile.Channels) > 0 {
		functions = append(functions, map[string]any{
			"filter": map[string]any{"terms": map[string]any{"channel": profile.Channels}},
			"weight": 1.3,
		})
	}
	functions = append(functions, map[string]any{
		"gauss": map[string]any{
			"created_at": map[string]any{
				"origin": anchor.UTC().Format(time.RFC3339),
				"scale":  "30d",
				"decay":  0.7,
			},
		},
	})

	body := map[string]any{
		"size":             pageSize,
		"track_total_hits": false,
		"query": map[string]any{
			"function_score": map[string]any{
				"query": map[string]any{
					"bool": map[string]any{
						"filter": []map[string]any{
							{"term": map[string]any{"surfaces": string(surface)}},
							{"term": map[string]any{"item_type": string(itemType)}},
						},
					},
				},
				"functions":  functions,
				"score_mode": "multiply",
				"boost_mode": "multiply",
			},
		},
		"sort": []map[string]any{
			{"_score": map[string]any{"order": "desc"}},
			{"item_id": map[string]any{"order": "asc"}},
		},
		"pit": map[string]any{
			"id":         handle,
			"keep_alive": keepAlive,
		},
		"_source": []string{"item_id"},
	}

	if strings.TrimSpace(token) != "" {
		after, err := decodeToken(token)
		if err != nil {
			return nil, err
		}
		body["search_after"] = after
	}
	return json.Marshal(body)
}

// continuation token = base64url(JSON sort values of the last hit)
func encodeToken(sort []any) (string, error) {
	if len(sort) == 0 {
		return "", fmt.Errorf("hit carries no sort values")
	}
	raw, err := json.Marshal(sort)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeToken(token string) ([]any, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: bad continuation token", domain.ErrInvalidCursor)
	}
	var after []any
	if err := json.Unmarshal(raw, &after); err != nil || len(after) == 0 {
		return nil, fmt.Errorf("%w: bad continuation token", domain.ErrInvalidCursor)
	}
	return after, nil
}
