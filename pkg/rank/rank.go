// Package rank turns a raw vector-similarity search into an ordered,
// filtered result set: hard relevance cutoff, time decay with an
// importance exemption, project and access-frequency boosts, and a
// deterministic tie-break.
package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cohesivestack/valgo"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/provider"
)

// Searcher is the slice of the vector store the engine needs: filtered
// nearest-neighbor search plus payload patches for access bookkeeping.
type Searcher interface {
	Search(ctx context.Context, vector []float32, filters memory.Filters, limit int) ([]memory.Scored, error)
	Patch(ctx context.Context, ids []string, fields map[string]any) error
}

// Config carries the rerank parameters. Zero values fall back to the
// documented defaults.
type Config struct {
	DefaultLimit     int     // results when the caller passes limit <= 0
	Overfetch        int     // over-fetch multiple of limit for rerank headroom
	SimilarityFloor  float64 // raw cosine cutoff, independent of rerank
	HalfLifeDays     float64 // decay half-life
	ImmuneImportance int     // importance at which decay is disabled
	ProjectBoost     float64 // boost when the memory's project matches
	AccessEpsilon    float64 // log coefficient of the access boost
	AccessBoostCap   float64 // saturation point of the access boost
	TouchTimeout     time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.Overfetch < 2 {
		cfg.Overfetch = 3
	}
	if cfg.SimilarityFloor == 0 {
		cfg.SimilarityFloor = 0.3
	}
	if cfg.HalfLifeDays == 0 {
		cfg.HalfLifeDays = 90
	}
	if cfg.ImmuneImportance == 0 {
		cfg.ImmuneImportance = 8
	}
	if cfg.ProjectBoost == 0 {
		cfg.ProjectBoost = 1.2
	}
	if cfg.AccessEpsilon == 0 {
		cfg.AccessEpsilon = 0.05
	}
	if cfg.AccessBoostCap == 0 {
		cfg.AccessBoostCap = 1.25
	}
	if cfg.TouchTimeout == 0 {
		cfg.TouchTimeout = 10 * time.Second
	}
	return cfg
}

// Result pairs a memory with its compound score and the raw
// similarity it came in with.
type Result struct {
	Memory     memory.Memory `json:"memory"`
	Score      float64       `json:"score"`
	Similarity float64       `json:"similarity"`
}

// Engine ranks search candidates. It never retries: transient
// infrastructure errors surface to the caller as-is.
type Engine struct {
	embedder provider.Embedder
	store    Searcher
	cfg      Config
}

// New returns a ranking engine over the given embedder and store.
func New(embedder provider.Embedder, store Searcher, cfg Config) *Engine {
	return &Engine{
		embedder: embedder,
		store:    store,
		cfg:      cfg.withDefaults(),
	}
}

// Search embeds the query, over-fetches candidates, prunes and reranks
// them, and returns at most limit results. Returned memories get their
// access count bumped on a detached best-effort path that never blocks
// or fails the response.
func (engine *Engine) Search(
	ctx context.Context,
	query string,
	filters memory.Filters,
	limit int,
	currentProject string,
) ([]Result, error) {
	if val := valgo.Is(valgo.String(query, "query").Not().Blank()); !val.Valid() {
		return nil, &errors.ValidationError{
			Field:   "query",
			Message: "query must not be empty",
		}
	}

	if limit <= 0 {
		limit = engine.cfg.DefaultLimit
	}

	vector, err := engine.embedder.Embed(ctx, query)

	if err != nil {
		return nil, err
	}

	candidates, err := engine.store.Search(
		ctx, vector, filters, limit*engine.cfg.Overfetch,
	)

	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	results := make([]Result, 0, len(candidates))

	for _, candidate := range candidates {
		if candidate.Similarity < engine.cfg.SimilarityFloor {
			continue
		}

		results = append(results, Result{
			Memory:     candidate.Memory,
			Similarity: candidate.Similarity,
			Score:      engine.score(candidate, currentProject, now),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Deterministic tie-break: newer wins.
		return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
	})

	if len(results) > limit {
		results = results[:limit]
	}

	engine.touch(results)

	return results, nil
}

// score composes similarity with decay and the project/access boosts.
func (engine *Engine) score(candidate memory.Scored, currentProject string, now time.Time) float64 {
	m := candidate.Memory

	score := candidate.Similarity * engine.Decay(m, now)

	if currentProject != "" && m.Project == currentProject {
		score *= engine.cfg.ProjectBoost
	}

	return score * engine.accessBoost(m.AccessCount)
}

// Decay returns the time attenuation factor for a memory. Memories at
// or above the immunity importance never decay.
func (engine *Engine) Decay(m memory.Memory, now time.Time) float64 {
	if m.Importance >= engine.cfg.ImmuneImportance {
		return 1
	}

	return math.Pow(0.5, m.AgeDays(now)/engine.cfg.HalfLifeDays)
}

// accessBoost grows logarithmically with the access count and
// saturates at the configured cap, so recall frequency nudges ranking
// without dominating similarity.
func (engine *Engine) accessBoost(count int) float64 {
	boost := 1 + engine.cfg.AccessEpsilon*math.Log(1+float64(count))

	return math.Min(boost, engine.cfg.AccessBoostCap)
}

// touch dispatches the access bookkeeping for returned memories on a
// detached context. Failures are logged and swallowed; a successful
// search never turns into an error here.
func (engine *Engine) touch(results []Result) {
	if len(results) == 0 {
		return
	}

	type bump struct {
		id    string
		count int
	}

	bumps := make([]bump, 0, len(results))

	for _, result := range results {
		bumps = append(bumps, bump{
			id:    result.Memory.ID,
			count: result.Memory.AccessCount + 1,
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), engine.cfg.TouchTimeout,
		)
		defer cancel()

		accessedAt := time.Now().UTC().Format(time.RFC3339Nano)

		for _, b := range bumps {
			err := engine.store.Patch(ctx, []string{b.id}, map[string]any{
				"access_count": b.count,
				"accessed_at":  accessedAt,
			})

			if err != nil {
				log.Warn("access bump failed", "id", b.id, "error", err)
			}
		}
	}()
}
