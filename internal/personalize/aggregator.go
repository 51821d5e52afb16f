package personalize

import (
	"context"
	"sort"

	"github.com/SWMChefTory/recommend-service/internal/domain"
	"github.com/SWMChefTory/recommend-service/internal/pkg/logger"
)

const (
	topKeywords = 5
	topChannels = 3
)

// Aggregator builds the per-request personalization profile from recently
// viewed seed items. It is a non-critical enhancement: metadata failures
// degrade to an empty profile instead of failing the request.
type Aggregator struct {
	meta domain.ItemMetaProvider
}

func NewAggregator(meta domain.ItemMetaProvider) *Aggregator {
	return &Aggregator{meta: meta}
}

func (a *Aggregator) Profile(ctx context.Context, seedIDs []string) (domain.Profile, error) {
	if len(seedIDs) == 0 {
		return domain.Profile{}, nil
	}

	metas, err := a.meta.ItemMeta(ctx, seedIDs)
	if err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Msg("item metadata lookup failed; serving unpersonalized")
		return domain.Profile{}, nil
	}

	keywords := map[string]int{}
	channels := map[string]int{}
	for _, m := range metas {
		for _, tag := range m.Tags {
			if tag != "" {
				keywords[tag]++
			}
		}
		if m.Channel != "" {
			channels[m.Channel]++
		}
	}

	return domain.Profile{
		Keywords: rank(keywords, topKeywords),
		Channels: rank(channels, topChannels),
	}, nil
}

// rank orders by frequency descending, value ascending as tie-break, so the
// profile is deterministic for identical seed sets.
func rank(counts map[string]int, limit int) []string {
	if len(counts) == 0 {
		return nil
	}
	vals := make([]string, 0, len(counts))
	for v := range counts {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool {
		if counts[vals[i]] != counts[vals[j]] {
			return counts[vals[i]] > counts[vals[j]]
		}
		return vals[i] < vals[j]
	})
	if len(vals) > limit {
		vals = vals[:limit]
	}
	return vals
}
