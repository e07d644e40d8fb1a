// Package inventory indexes retrieved rule groups by scope and rule id.
package inventory

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ruleflatten/internal/rules"
)

// ErrDuplicateRuleID is returned when two rule groups claim the same rule id.
// The service assigns rule ids globally, so this indicates corrupt input.
var ErrDuplicateRuleID = errors.New("duplicate rule id")

// Index maps rules back to their owning groups and scopes.
type Index struct {
	groups       []*rules.RuleGroup
	groupOfRule  map[int]*rules.RuleGroup
	projectRules map[int][]*rules.Rule
	teamRules    map[int][]*rules.Rule
}

// Build indexes the given rule groups. The groups are expected to be
// pre-filtered to project and team scopes by the store adapter.
func Build(groups []*rules.RuleGroup, logger *zap.Logger) (*Index, error) {
	idx := &Index{
		groups:       groups,
		groupOfRule:  make(map[int]*rules.RuleGroup),
		projectRules: make(map[int][]*rules.Rule),
		teamRules:    make(map[int][]*rules.Rule),
	}

	for _, g := range groups {
		logger.Debug("Indexing rule group", zap.String("full_name", g.FullName))
		for _, r := range g.Rules {
			if prev, ok := idx.groupOfRule[r.ID]; ok && r.ID != rules.UnpersistedRuleID {
				return nil, fmt.Errorf("%w: rule %d in both %q and %q",
					ErrDuplicateRuleID, r.ID, prev.FullName, g.FullName)
			}
			idx.groupOfRule[r.ID] = g

			switch g.PackageType {
			case rules.PackageTypeProject:
				idx.projectRules[g.ProjectID] = append(idx.projectRules[g.ProjectID], r)
			case rules.PackageTypeTeam:
				idx.teamRules[g.OwningTeam] = append(idx.teamRules[g.OwningTeam], r)
			}
		}
	}

	return idx, nil
}

// Groups returns all indexed rule groups in retrieval order.
func (idx *Index) Groups() []*rules.RuleGroup { return idx.groups }

// GroupOfRule returns the group owning the rule with the given id, or nil.
func (idx *Index) GroupOfRule(ruleID int) *rules.RuleGroup { return idx.groupOfRule[ruleID] }

// ProjectRules returns the project-scope rules declared for a project.
func (idx *Index) ProjectRules(projectID int) []*rules.Rule { return idx.projectRules[projectID] }

// TeamRules returns the team-scope rules declared for a team.
func (idx *Index) TeamRules(teamID int) []*rules.Rule { return idx.teamRules[teamID] }
