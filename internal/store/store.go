// Package store talks to the rule-management service. The Store interface is
// the collaborator boundary the pipeline depends on; Client is the HTTP
// implementation. Records are validated here so malformed payloads are
// rejected at the boundary rather than deep inside the merge.
package store

import (
	"context"

	"ruleflatten/internal/rules"
)

// Store exposes the remote operations the pipeline needs. All calls are
// blocking; failures reported by the service's response envelope surface as
// ordinary errors.
type Store interface {
	ListProjects(ctx context.Context) ([]*rules.Project, error)
	ListTeams(ctx context.Context) ([]*rules.Team, error)

	// FetchRuleGroups returns all project- and team-scope rule groups.
	FetchRuleGroups(ctx context.Context) ([]*rules.RuleGroup, error)

	// FetchLatestFinishedAnalysis returns the most recent finished analysis
	// for a project, or nil when the project has never completed one.
	FetchLatestFinishedAnalysis(ctx context.Context, projectID int) (*rules.Analysis, error)

	// WriteRuleGroups persists the flattened rule groups.
	WriteRuleGroups(ctx context.Context, groups []*rules.RuleGroup) error
}
