// Package flatten orchestrates one reconciliation run: read the remote
// state, compute the flattened rule groups, optionally preview and export
// them, write them back and verify the write.
package flatten

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"ruleflatten/internal/hierarchy"
	"ruleflatten/internal/inventory"
	"ruleflatten/internal/languages"
	"ruleflatten/internal/merge"
	"ruleflatten/internal/rules"
	"ruleflatten/internal/store"
	"ruleflatten/internal/verify"
)

// Options select what one run does beyond the core computation.
type Options struct {
	DryRun      bool
	PrettyPrint bool
	SaveRules   bool
	ExportDir   string
	Projects    []int

	// RewriteProjectOnly pins the contested project-only override case;
	// see merge.Options.
	RewriteProjectOnly bool

	// Now supplies header timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Result reports what a run computed and, when a write happened, how the
// verification went.
type Result struct {
	Computed     []*rules.RuleGroup
	Written      bool
	Verification *verify.Report
}

// Pipeline carries the run's collaborators explicitly; there is no ambient
// service state.
type Pipeline struct {
	store  store.Store
	logger *zap.Logger
	opts   Options
}

// New creates a pipeline.
func New(s store.Store, logger *zap.Logger, opts Options) *Pipeline {
	return &Pipeline{store: s, logger: logger, opts: opts}
}

// Run executes the whole job. Remote read/write failures abort immediately;
// verification mismatches are reported in the result but are not errors.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	projects, err := p.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	teams, err := p.store.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := p.store.FetchRuleGroups(ctx)
	if err != nil {
		return nil, err
	}

	tree, err := hierarchy.Build(projects, teams, p.logger)
	if err != nil {
		return nil, err
	}
	idx, err := inventory.Build(groups, p.logger)
	if err != nil {
		return nil, err
	}
	langs := languages.NewCache(p.store, p.logger)

	p.dumpRuleGroups(groups, "Old rule groups")

	engine := merge.NewEngine(tree, idx, langs, p.logger, merge.Options{
		Projects:           p.opts.Projects,
		RewriteProjectOnly: p.opts.RewriteProjectOnly,
		Now:                p.opts.Now,
	})
	computed, err := engine.Flatten(ctx)
	if err != nil {
		return nil, err
	}
	p.dumpRuleGroups(computed, "New rule groups")

	result := &Result{Computed: computed}

	if p.opts.PrettyPrint {
		if err := prettyPrint(computed); err != nil {
			return nil, err
		}
	}
	if p.opts.SaveRules {
		if err := exportRuleBodies(p.opts.ExportDir, computed, p.logger); err != nil {
			return nil, err
		}
	}

	if len(computed) == 0 {
		p.logger.Info("No new rule groups to write")
		return result, nil
	}
	if p.opts.DryRun {
		p.logger.Info("Dry run, skipping write", zap.Int("groups", len(computed)))
		return result, nil
	}

	if err := p.store.WriteRuleGroups(ctx, computed); err != nil {
		return nil, err
	}
	result.Written = true
	p.logger.Info("Rule groups written", zap.Int("groups", len(computed)))

	// Re-read with fresh state. The language cache from the compute phase is
	// deliberately not reused past this point.
	rereadGroups, err := p.store.FetchRuleGroups(ctx)
	if err != nil {
		return nil, err
	}
	report := verify.New(p.logger).Check(rereadGroups, computed)
	result.Verification = &report

	return result, nil
}

func prettyPrint(groups []*rules.RuleGroup) error {
	data, err := json.MarshalIndent(groups, "", "    ")
	if err != nil {
		return fmt.Errorf("pretty-print rule groups: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
