package flatten

import (
	"crypto/md5"
	"encoding/hex"

	"go.uber.org/zap"

	"ruleflatten/internal/export"
	"ruleflatten/internal/rules"
)

// dumpRuleGroups writes a structural dump of the given groups to the debug
// log. Rule bodies are summarized by digest rather than dumped in full.
func (p *Pipeline) dumpRuleGroups(groups []*rules.RuleGroup, message string) {
	if !p.logger.Core().Enabled(zap.DebugLevel) {
		return
	}

	p.logger.Debug("------------------------------")
	p.logger.Debug(message)
	p.logger.Debug("------------------------------")
	for _, g := range groups {
		p.logger.Debug("Rule group",
			zap.String("name", g.Name),
			zap.String("language", g.LanguageName),
			zap.Int("owning_team", g.OwningTeam),
			zap.String("full_name", g.FullName),
			zap.Int("package_id", g.PackageID),
			zap.String("package_type", string(g.PackageType)),
			zap.Int("project_id", g.ProjectID),
			zap.String("status", g.Status))
		for i, r := range g.Rules {
			digest := "No source found"
			if r.Source != "" {
				sum := md5.Sum([]byte(r.Source))
				digest = hex.EncodeToString(sum[:])
			}
			p.logger.Debug("Rule",
				zap.Int("index", i),
				zap.String("name", r.Name),
				zap.Int("id", r.ID),
				zap.String("md5", digest),
				zap.Int("package_id", r.PackageID),
				zap.Int("version_code", r.VersionCode),
				zap.String("status", r.Status))
		}
	}
}

// exportRuleBodies is a thin seam so tests can exercise the export path
// through the pipeline options.
func exportRuleBodies(dir string, groups []*rules.RuleGroup, logger *zap.Logger) error {
	logger.Info("Exporting rule bodies", zap.String("dir", dir))
	return export.SaveRuleBodies(dir, groups, logger)
}
