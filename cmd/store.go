package cmd

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"github.com/theapemachine/recall/pkg/category"
	"github.com/theapemachine/recall/pkg/graph"
	"github.com/theapemachine/recall/pkg/provider"
	"github.com/theapemachine/recall/pkg/rank"
	"github.com/theapemachine/recall/pkg/stale"
	"github.com/theapemachine/recall/pkg/stores/inmem"
	"github.com/theapemachine/recall/pkg/stores/qdrant"
	"github.com/theapemachine/recall/pkg/stores/s3"
	"github.com/theapemachine/recall/pkg/unified"
)

// vectorBackend is the intersection of the qdrant and in-process
// stores: the unified facade plus the category cascade.
type vectorBackend interface {
	unified.VectorStore
	category.Cascader
}

/*
buildStore assembles the unified store from the active configuration.
With no qdrant endpoint configured it falls back to the in-process
store, which is handy for development but loses everything on exit.
*/
func buildStore() (*unified.Store, error) {
	embedder, err := provider.New(
		viper.GetString("embedding.backend"),
		viper.GetString("embedding.model"),
	)

	if err != nil {
		return nil, err
	}

	var vectors vectorBackend

	if endpoint := viper.GetString("qdrant.endpoint"); endpoint != "" {
		client := qdrant.New(endpoint, viper.GetString("qdrant.collection"))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.EnsureCollection(ctx, viper.GetInt("embedding.dimension")); err != nil {
			return nil, err
		}

		vectors = client
	} else {
		log.Warn("no qdrant endpoint configured, using the in-process store")
		vectors = inmem.New()
	}

	return unified.New(
		embedder,
		vectors,
		category.NewRegistry(vectors),
		stale.New(viper.GetString("workspace.root")),
		rank.Config{
			DefaultLimit:     viper.GetInt("rank.default_limit"),
			SimilarityFloor:  viper.GetFloat64("rank.similarity_floor"),
			HalfLifeDays:     viper.GetFloat64("rank.half_life_days"),
			ImmuneImportance: viper.GetInt("rank.immune_importance"),
			ProjectBoost:     viper.GetFloat64("rank.project_boost"),
			AccessEpsilon:    viper.GetFloat64("rank.access_epsilon"),
			AccessBoostCap:   viper.GetFloat64("rank.access_boost_cap"),
		},
		graph.Config{
			SimilarityThreshold:      viper.GetFloat64("graph.similarity_threshold"),
			NoiseFloor:               viper.GetFloat64("graph.noise_floor"),
			SuppressTagsWithinFamily: viper.GetBool("graph.suppress_tags_within_family"),
		},
	), nil
}

// buildSnapshots returns nil when snapshots are disabled.
func buildSnapshots() (*s3.Store, error) {
	if !viper.GetBool("snapshots.enabled") {
		return nil, nil
	}

	conn, err := s3.NewConn(
		viper.GetString("snapshots.endpoint"),
		viper.GetString("snapshots.access_key"),
		viper.GetString("snapshots.secret_key"),
		viper.GetString("snapshots.bucket"),
		viper.GetBool("snapshots.use_ssl"),
	)

	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	return s3.NewStore(conn), nil
}
