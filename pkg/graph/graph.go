// Package graph derives a deduplicated, typed, weighted edge set over
// the active memory population for visualization. Five independent
// edge sources fire per pair; merged edges take the maximum strength
// and the union of contributing types.
package graph

import (
	"context"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/theapemachine/recall/pkg/memory"
)

// EdgeType identifies which source produced (part of) an edge.
type EdgeType string

const (
	EdgeSimilarity EdgeType = "similarity"
	EdgeSharedFile EdgeType = "shared_file"
	EdgeSharedTag  EdgeType = "shared_tag"
	EdgeFamily     EdgeType = "family"
	EdgeManual     EdgeType = "manual"
)

// FamilyResolver resolves a category to its family root: the parent if
// one is set, otherwise the category's own name.
type FamilyResolver interface {
	ParentOf(name string) string
}

// Config carries the edge-source parameters.
type Config struct {
	// SimilarityThreshold is the strict lower bound for similarity
	// edges: a pair at exactly the threshold produces no edge.
	SimilarityThreshold float64
	// NoiseFloor drops merged edges at or below this strength.
	NoiseFloor float64
	// SuppressTagsWithinFamily disables the shared-tag source for
	// pairs that already share a family. Both sources contribute by
	// default.
	SuppressTagsWithinFamily bool
}

func (cfg Config) withDefaults() Config {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.65
	}
	if cfg.NoiseFloor == 0 {
		cfg.NoiseFloor = 0.1
	}
	return cfg
}

// Node is the per-memory summary carried in a graph snapshot.
type Node struct {
	ID         string   `json:"id"`
	Category   string   `json:"category"`
	Project    string   `json:"project,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Importance int      `json:"importance"`
	Preview    string   `json:"preview"`
}

// Edge connects two memories with a merged strength in (0, 1] and the
// set of sources that contributed.
type Edge struct {
	A        string     `json:"a"`
	B        string     `json:"b"`
	Strength float64    `json:"strength"`
	Types    []EdgeType `json:"types"`
}

// Graph is one consistent snapshot of nodes and merged edges.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Builder computes relationship graphs.
type Builder struct {
	cfg Config
}

// New returns a graph builder with the given config.
func New(cfg Config) *Builder {
	return &Builder{cfg: cfg.withDefaults()}
}

type pairKey struct{ a, b string }

func keyFor(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

type mergedEdge struct {
	strength float64
	types    map[EdgeType]struct{}
}

// Build evaluates every edge source over the given snapshot of active
// memories. Trashed memories are skipped even if present in the input.
// The caller's context bounds the pairwise pass.
func (builder *Builder) Build(
	ctx context.Context, memories []memory.Memory, resolver FamilyResolver,
) (Graph, error) {
	active := make([]memory.Memory, 0, len(memories))

	for _, m := range memories {
		if m.Active() {
			active = append(active, m)
		}
	}

	merged := make(map[pairKey]*mergedEdge)

	propose := func(a, b string, strength float64, kind EdgeType) {
		key := keyFor(a, b)
		edge, ok := merged[key]

		if !ok {
			edge = &mergedEdge{types: make(map[EdgeType]struct{})}
			merged[key] = edge
		}

		// Maximum, never a sum: a manual link must not be diluted by a
		// weak overlap, nor a weak source inflate a strong one.
		edge.strength = math.Max(edge.strength, strength)
		edge.types[kind] = struct{}{}
	}

	index := make(map[string]struct{}, len(active))

	for _, m := range active {
		index[m.ID] = struct{}{}
	}

	for i := range active {
		if err := ctx.Err(); err != nil {
			return Graph{}, err
		}

		a := active[i]

		// Manual links are directional in storage but produce one
		// undirected edge; targets outside the active set are skipped.
		for _, target := range a.RelatedMemoryIDs {
			if target == a.ID {
				continue
			}

			if _, ok := index[target]; ok {
				propose(a.ID, target, 0.9, EdgeManual)
			}
		}

		for j := i + 1; j < len(active); j++ {
			b := active[j]

			if sim := cosine(a.Embedding, b.Embedding); sim > builder.cfg.SimilarityThreshold {
				strength := (sim - builder.cfg.SimilarityThreshold) /
					(1 - builder.cfg.SimilarityThreshold)
				propose(a.ID, b.ID, strength, EdgeSimilarity)
			}

			if k := memory.SharedFiles(a, b); k >= 1 {
				propose(a.ID, b.ID, 0.3+0.15*float64(k), EdgeSharedFile)
			}

			sameFamily := resolver != nil &&
				resolver.ParentOf(a.Category) == resolver.ParentOf(b.Category)

			if sameFamily {
				propose(a.ID, b.ID, 0.2, EdgeFamily)
			}

			if builder.cfg.SuppressTagsWithinFamily && sameFamily {
				continue
			}

			if k := memory.SharedTags(a, b); k >= 1 {
				propose(a.ID, b.ID, 0.25+0.1*float64(k), EdgeSharedTag)
			}
		}
	}

	graph := Graph{
		Nodes: make([]Node, 0, len(active)),
		Edges: make([]Edge, 0, len(merged)),
	}

	for _, m := range active {
		graph.Nodes = append(graph.Nodes, Node{
			ID:         m.ID,
			Category:   m.Category,
			Project:    m.Project,
			Tags:       m.Tags,
			Importance: m.Importance,
			Preview:    preview(m.Content),
		})
	}

	for key, edge := range merged {
		if edge.strength <= builder.cfg.NoiseFloor {
			continue
		}

		types := make([]EdgeType, 0, len(edge.types))

		for kind := range edge.types {
			types = append(types, kind)
		}

		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

		graph.Edges = append(graph.Edges, Edge{
			A:        key.a,
			B:        key.b,
			Strength: edge.strength,
			Types:    types,
		})
	}

	sort.Slice(graph.Edges, func(i, j int) bool {
		if graph.Edges[i].A != graph.Edges[j].A {
			return graph.Edges[i].A < graph.Edges[j].A
		}
		return graph.Edges[i].B < graph.Edges[j].B
	})

	return graph, nil
}

// cosine computes cosine similarity with float64 accumulation.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func preview(content string) string {
	const max = 120

	if len(content) <= max {
		return content
	}

	// Back up to a rune boundary so the cut never splits a multibyte
	// character.
	cut := max

	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}

	return content[:cut] + "…"
}
