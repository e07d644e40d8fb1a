// Package hierarchy builds the scope hierarchy indexes: project→team
// assignment, team ancestry chains and team→projects ownership.
package hierarchy

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"ruleflatten/internal/rules"
)

// ErrCycle is returned when a team's parent chain loops back on itself.
// The service should never produce one, but following it would hang the run.
var ErrCycle = errors.New("cycle in team hierarchy")

// Tree holds the precomputed hierarchy indexes for one run.
type Tree struct {
	teams         map[int]*rules.Team
	projects      map[int]*rules.Project
	teamOfProject map[int]int
	ancestry      map[int][]int
	projectsOf    map[int][]int
}

// Build constructs the hierarchy indexes from the full project and team sets.
// A dangling parent reference truncates the ancestry at that point (logged,
// not fatal); a parent cycle is a fatal configuration error.
func Build(projects []*rules.Project, teams []*rules.Team, logger *zap.Logger) (*Tree, error) {
	t := &Tree{
		teams:         make(map[int]*rules.Team, len(teams)),
		projects:      make(map[int]*rules.Project, len(projects)),
		teamOfProject: make(map[int]int, len(projects)),
		ancestry:      make(map[int][]int, len(teams)),
		projectsOf:    make(map[int][]int),
	}

	for _, team := range teams {
		t.teams[team.ID] = team
	}

	for _, p := range projects {
		t.projects[p.ID] = p
		t.teamOfProject[p.ID] = p.TeamID
		t.projectsOf[p.TeamID] = append(t.projectsOf[p.TeamID], p.ID)
	}
	logger.Debug("Project maps created",
		zap.Int("projects", len(projects)),
		zap.Int("teams_with_projects", len(t.projectsOf)))

	for _, team := range teams {
		chain, err := t.buildAncestry(team, logger)
		if err != nil {
			return nil, err
		}
		t.ancestry[team.ID] = chain
	}
	logger.Debug("Team ancestry map created", zap.Int("teams", len(teams)))

	return t, nil
}

// buildAncestry walks from a team to its root, nearest scope first.
func (t *Tree) buildAncestry(team *rules.Team, logger *zap.Logger) ([]int, error) {
	chain := []int{team.ID}
	visited := map[int]bool{team.ID: true}

	parentID := team.ParentID
	for parentID != rules.RootTeamParentID {
		if visited[parentID] {
			return nil, fmt.Errorf("%w: team %d revisits team %d", ErrCycle, team.ID, parentID)
		}
		parent, ok := t.teams[parentID]
		if !ok {
			// Known limitation: the ancestry is silently truncated here.
			logger.Warn("Dangling team parent reference, truncating ancestry",
				zap.Int("team", team.ID),
				zap.Int("missing_parent", parentID))
			break
		}
		chain = append(chain, parentID)
		visited[parentID] = true
		parentID = parent.ParentID
	}

	return chain, nil
}

// Team returns the team record for an id, or nil.
func (t *Tree) Team(id int) *rules.Team { return t.teams[id] }

// Project returns the project record for an id, or nil.
func (t *Tree) Project(id int) *rules.Project { return t.projects[id] }

// TeamOfProject returns the owning team of a project.
func (t *Tree) TeamOfProject(projectID int) int { return t.teamOfProject[projectID] }

// AncestryOf returns the team's ancestor chain, the team itself first.
func (t *Tree) AncestryOf(teamID int) []int { return t.ancestry[teamID] }

// ProjectsOf returns the ids of projects directly owned by a team.
func (t *Tree) ProjectsOf(teamID int) []int { return t.projectsOf[teamID] }

// ProjectIDs returns every known project id in ascending order.
func (t *Tree) ProjectIDs() []int {
	ids := make([]int, 0, len(t.projects))
	for id := range t.projects {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
