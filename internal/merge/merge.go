// Package merge implements the flattening algorithm: for every project it
// collects the override chain of each rule name (project scope first, then
// ancestor teams nearest to farthest) and produces project-owned rule groups
// whose bodies either pass a single team override through or compose the
// whole chain into delegate calls.
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ruleflatten/internal/hierarchy"
	"ruleflatten/internal/inventory"
	"ruleflatten/internal/languages"
	"ruleflatten/internal/rules"
)

// Marker tags every merged body. A body already carrying it is never
// re-merged, which makes the whole job idempotent against its own output.
const Marker = "// MERGED - "

// Options tune a flattening run.
type Options struct {
	// Projects restricts flattening to the listed project ids. Empty means
	// all projects.
	Projects []int

	// RewriteProjectOnly controls the contested boundary case: a rule
	// customized only at project level. The default (false) skips it, since
	// the project already holds the authoritative body. When true the rule
	// is re-emitted with a provenance header.
	RewriteProjectOnly bool

	// Now supplies header timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Engine computes the flattened rule-group set for one run.
type Engine struct {
	tree   *hierarchy.Tree
	idx    *inventory.Index
	langs  *languages.Cache
	logger *zap.Logger
	opts   Options
}

// NewEngine wires the engine to the hierarchy, inventory and language cache
// built for this run.
func NewEngine(tree *hierarchy.Tree, idx *inventory.Index, langs *languages.Cache,
	logger *zap.Logger, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{tree: tree, idx: idx, langs: langs, logger: logger, opts: opts}
}

// ruleKey identifies one logical rule for one project: overrides join on
// rule name within a language.
type ruleKey struct {
	Name         string
	LanguageName string
}

// Flatten walks every project and returns the synthesized project-scope rule
// groups. Groups that end up with no rules are discarded.
func (e *Engine) Flatten(ctx context.Context) ([]*rules.RuleGroup, error) {
	var out []*rules.RuleGroup

	for _, projectID := range e.tree.ProjectIDs() {
		project := e.tree.Project(projectID)
		e.logger.Debug("Flattening project",
			zap.Int("project", project.ID),
			zap.String("name", project.Name))

		if !e.selected(project.ID) {
			e.logger.Debug("Skipping project not in filter", zap.Int("project", project.ID))
			continue
		}

		if err := e.flattenProject(ctx, project, &out); err != nil {
			return nil, err
		}
	}

	// Only keep groups that gained at least one rule.
	kept := out[:0]
	for _, g := range out {
		if len(g.Rules) > 0 {
			kept = append(kept, g)
		} else {
			e.logger.Debug("Discarding empty rule group", zap.String("full_name", g.FullName))
		}
	}
	return kept, nil
}

func (e *Engine) flattenProject(ctx context.Context, project *rules.Project, out *[]*rules.RuleGroup) error {
	applicable, err := e.langs.LanguagesOf(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("languages of project %d: %w", project.ID, err)
	}

	overrides := make(map[ruleKey][]*rules.Rule)
	var order []ruleKey

	add := func(key ruleKey, r *rules.Rule) {
		if _, seen := overrides[key]; !seen {
			order = append(order, key)
		}
		overrides[key] = append(overrides[key], r)
	}

	// Project-level overrides are the nearest scope and seed each chain.
	e.logger.Debug("Collecting project-level rules", zap.Int("project", project.ID))
	for _, r := range e.idx.ProjectRules(project.ID) {
		g := e.idx.GroupOfRule(r.ID)
		if !applicable[g.LanguageID] {
			e.logger.Debug("Language not analyzed for project, skipping rule",
				zap.String("rule", r.Name),
				zap.String("language", g.LanguageName))
			continue
		}
		add(ruleKey{Name: r.Name, LanguageName: g.LanguageName}, r)
	}

	// Ancestor teams follow, nearest first.
	for _, teamID := range e.tree.AncestryOf(e.tree.TeamOfProject(project.ID)) {
		e.logger.Debug("Collecting team rules", zap.Int("team", teamID))
		for _, r := range e.idx.TeamRules(teamID) {
			g := e.idx.GroupOfRule(r.ID)
			if !applicable[g.LanguageID] {
				e.logger.Debug("Language not analyzed for project, skipping rule",
					zap.String("rule", r.Name),
					zap.String("language", g.LanguageName))
				continue
			}
			add(ruleKey{Name: r.Name, LanguageName: g.LanguageName}, r)
		}
	}

	for _, key := range order {
		e.emitRule(project, key, overrides[key], out)
	}
	return nil
}

// emitRule resolves one override chain into a destination group and, when
// there is anything new to say, a merged rule.
func (e *Engine) emitRule(project *rules.Project, key ruleKey, chain []*rules.Rule, out *[]*rules.RuleGroup) {
	e.logger.Debug("Processing rule",
		zap.String("rule", key.Name),
		zap.String("language", key.LanguageName),
		zap.Int("overrides", len(chain)))

	nearest := chain[0]
	srcGroup := e.idx.GroupOfRule(nearest.ID)
	fullName := rules.ProjectFullName(srcGroup.LanguageName, project.ID, srcGroup.Name)

	var dest *rules.RuleGroup
	for _, g := range *out {
		if g.FullName == fullName {
			dest = g
			break
		}
	}
	if dest == nil {
		if srcGroup.PackageType == rules.PackageTypeProject {
			e.logger.Debug("Reusing existing project rule group", zap.String("full_name", srcGroup.FullName))
			dest = cloneProjectGroup(srcGroup)
		} else {
			dest = newProjectGroup(srcGroup, project.ID)
			e.logger.Debug("Created project rule group", zap.String("full_name", dest.FullName))
		}
		*out = append(*out, dest)
	}

	if nearest.Source == "" {
		e.logger.Debug("Skipping rule with no source", zap.String("rule", key.Name))
		return
	}
	if strings.Contains(nearest.Source, Marker) {
		e.logger.Debug("Skipping already-merged rule", zap.String("rule", key.Name))
		return
	}

	var source string
	switch {
	case len(chain) > 1:
		source = e.composeChain(key.Name, chain)
	case srcGroup.PackageType == rules.PackageTypeTeam:
		// Single team override: pass the body through under a header.
		source = e.header(srcGroup, nearest) + "\n" + nearest.Source
	case e.opts.RewriteProjectOnly:
		source = e.header(srcGroup, nearest) + "\n" + nearest.Source
	default:
		e.logger.Debug("Skipping rule customized only at project level", zap.String("rule", key.Name))
		return
	}

	emitted := nearest.Clone()
	if srcGroup.PackageType == rules.PackageTypeTeam {
		// The flattened rule is a brand-new project-owned rule, not an
		// update of the team-scope source.
		emitted.ID = rules.UnpersistedRuleID
		emitted.PackageID = rules.UnlinkedPackageID
		emitted.VersionCode = rules.UnpersistedVersion
		emitted.Status = rules.StatusNew
	}
	emitted.Source = source

	if dest.RuleByName(key.Name) != nil {
		e.logger.Warn("Rule already present in destination group, not appending",
			zap.String("rule", key.Name),
			zap.String("group", dest.FullName))
		return
	}
	e.logger.Debug("Appending rule", zap.String("rule", key.Name), zap.String("group", dest.FullName))
	dest.Rules = append(dest.Rules, emitted)
}

// composeChain turns a multi-override chain into a single body. Overrides are
// processed farthest to nearest; each becomes a named delegate, and every
// delegate after the first has its base-implementation calls rewritten to
// invoke the delegate built just before it. The final statement invokes the
// nearest delegate.
func (e *Engine) composeChain(name string, chain []*rules.Rule) string {
	var sources []string
	var funcName string

	for i := len(chain) - 1; i >= 0; i-- {
		r := chain[i]
		g := e.idx.GroupOfRule(r.ID)

		source := strings.ReplaceAll(r.Source, "\n", "\n    ")
		if funcName != "" {
			baseCall := "base." + name
			source = strings.ReplaceAll(source, baseCall, "/*"+baseCall+"*/"+funcName)
		}

		funcName = rules.SanitizeFullName(g.FullName) + "__" + r.Name
		if g.PackageType == rules.PackageTypeTeam {
			// Sibling teams can share group names; the owning-team id keeps
			// their delegates distinct.
			funcName = strings.ReplaceAll(funcName, "_Team_", fmt.Sprintf("_Team_%d_", g.OwningTeam))
		}

		sources = append(sources,
			e.header(g, r)+"\nFunc<CxList> "+funcName+" = () => {\n    "+source+"\n    return result;\n};\n")
	}

	return strings.Join(sources, "\n") + "\nresult = " + funcName + "();"
}

// header builds the provenance comment prepended to every emitted body.
// It carries the merge marker checked by the idempotence guard.
func (e *Engine) header(g *rules.RuleGroup, r *rules.Rule) string {
	var owner string
	switch g.PackageType {
	case rules.PackageTypeProject:
		name := ""
		if p := e.tree.Project(g.ProjectID); p != nil {
			name = p.Name
		}
		owner = fmt.Sprintf("PROJECT: %d / %s", g.ProjectID, name)
	case rules.PackageTypeTeam:
		name := ""
		if t := e.tree.Team(g.OwningTeam); t != nil {
			name = t.FullName
		}
		owner = fmt.Sprintf("TEAM: %d / %s", g.OwningTeam, name)
	}

	return fmt.Sprintf(`// -------------------------------------------------------
%s%s LEVEL
// %s
// RULE: %d / %s
// GROUP: %d / %s
// LANGUAGE: %s
// ON: %s
// -------------------------------------------------------
`, Marker, strings.ToUpper(string(g.PackageType)), owner,
		r.ID, r.Name, g.PackageID, g.Name, g.LanguageName,
		e.opts.Now().Format("2006-01-02 15:04:05"))
}

func (e *Engine) selected(projectID int) bool {
	if len(e.opts.Projects) == 0 {
		return true
	}
	for _, id := range e.opts.Projects {
		if id == projectID {
			return true
		}
	}
	return false
}

// cloneProjectGroup copies an existing project-scope group as the destination
// for flattened rules, leaving the retrieved group untouched.
func cloneProjectGroup(src *rules.RuleGroup) *rules.RuleGroup {
	return &rules.RuleGroup{
		PackageID:    src.PackageID,
		Name:         src.Name,
		FullName:     src.FullName,
		PackageType:  rules.PackageTypeProject,
		ProjectID:    src.ProjectID,
		OwningTeam:   rules.UnownedTeamID,
		LanguageID:   src.LanguageID,
		LanguageName: src.LanguageName,
		Description:  src.Description,
		IsEncrypted:  src.IsEncrypted,
		IsReadOnly:   false,
		Status:       src.Status,
	}
}

// newProjectGroup synthesizes a project-scope group from a team-scope
// template group.
func newProjectGroup(src *rules.RuleGroup, projectID int) *rules.RuleGroup {
	return &rules.RuleGroup{
		PackageID:    rules.UnpersistedPackageID,
		Name:         src.Name,
		FullName:     rules.ProjectFullName(src.LanguageName, projectID, src.Name),
		PackageType:  rules.PackageTypeProject,
		ProjectID:    projectID,
		OwningTeam:   rules.UnownedTeamID,
		LanguageID:   src.LanguageID,
		LanguageName: src.LanguageName,
		Description:  src.Description,
		IsEncrypted:  src.IsEncrypted,
		IsReadOnly:   false,
		Status:       src.Status,
	}
}
