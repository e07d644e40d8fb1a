// Package languages resolves and caches the set of languages a project has
// actually been analyzed against. Rules in any other language are irrelevant
// to that project.
package languages

import (
	"context"

	"go.uber.org/zap"

	"ruleflatten/internal/rules"
)

// AnalysisFetcher is the slice of the remote store this package needs.
type AnalysisFetcher interface {
	// FetchLatestFinishedAnalysis returns the most recent finished analysis
	// for a project, or nil when the project has never completed one.
	FetchLatestFinishedAnalysis(ctx context.Context, projectID int) (*rules.Analysis, error)
}

// Cache lazily resolves per-project language sets and memoizes them for the
// life of one pipeline run. Separate runs (pre-write compute, post-write
// verification) must use separate Cache instances.
type Cache struct {
	fetcher AnalysisFetcher
	logger  *zap.Logger
	byProj  map[int]map[int]bool
}

// NewCache creates an empty cache backed by the given fetcher.
func NewCache(fetcher AnalysisFetcher, logger *zap.Logger) *Cache {
	return &Cache{
		fetcher: fetcher,
		logger:  logger,
		byProj:  make(map[int]map[int]bool),
	}
}

// LanguagesOf returns the applicable language set for a project. A project
// with no finished analysis gets an empty set: a warning is logged and the
// project is effectively skipped by the merge engine.
func (c *Cache) LanguagesOf(ctx context.Context, projectID int) (map[int]bool, error) {
	if langs, ok := c.byProj[projectID]; ok {
		return langs, nil
	}

	analysis, err := c.fetcher.FetchLatestFinishedAnalysis(ctx, projectID)
	if err != nil {
		return nil, err
	}

	langs := make(map[int]bool)
	if analysis == nil {
		c.logger.Warn("No finished analysis found for project", zap.Int("project", projectID))
	} else {
		for _, id := range analysis.Languages {
			langs[id] = true
		}
	}

	c.byProj[projectID] = langs
	return langs, nil
}
