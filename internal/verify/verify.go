// Package verify re-reads the remote state after a write and confirms every
// written rule group and rule landed intact. It is purely diagnostic: it
// counts and logs mismatches but never mutates or retries.
package verify

import (
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"ruleflatten/internal/rules"
)

// Report counts what was checked and what could not be found.
type Report struct {
	GroupsChecked int
	GroupsFailed  int
	RulesChecked  int
	RulesFailed   int
}

// Clean reports whether every written group and rule was found.
func (r Report) Clean() bool {
	return r.GroupsFailed == 0 && r.RulesFailed == 0
}

// Verifier checks written rule groups against freshly retrieved state.
type Verifier struct {
	logger *zap.Logger
}

// New creates a verifier.
func New(logger *zap.Logger) *Verifier {
	return &Verifier{logger: logger}
}

// Check confirms that every group in written is present in retrieved (matched
// by full name and package type) and that every rule within it is present by
// name with an identical body.
func (v *Verifier) Check(retrieved, written []*rules.RuleGroup) Report {
	var report Report

	for _, g := range written {
		v.logger.Debug("Checking rule group", zap.String("full_name", g.FullName))
		report.GroupsChecked++

		found := findGroup(retrieved, g)
		if found == nil {
			v.logger.Error("Rule group not found after write", zap.String("full_name", g.FullName))
			report.GroupsFailed++
			continue
		}

		for _, r := range g.Rules {
			report.RulesChecked++
			match := found.RuleByName(r.Name)
			switch {
			case match == nil:
				v.logger.Error("Rule not found after write",
					zap.String("group", g.FullName),
					zap.String("rule", r.Name))
				report.RulesFailed++
			case match.Source != r.Source:
				v.logger.Error("Rule body differs after write",
					zap.String("group", g.FullName),
					zap.String("rule", r.Name),
					zap.String("diff", cmp.Diff(r.Source, match.Source)))
				report.RulesFailed++
			default:
				v.logger.Debug("Found rule", zap.String("rule", r.Name))
			}
		}
	}

	v.logger.Info("Verification complete",
		zap.Int("groups_checked", report.GroupsChecked),
		zap.Int("rules_checked", report.RulesChecked))
	if !report.Clean() {
		v.logger.Error("Verification found mismatches",
			zap.Int("groups_failed", report.GroupsFailed),
			zap.Int("rules_failed", report.RulesFailed))
	}
	return report
}

// findGroup matches by full name and package type. A full-name match with
// the wrong scope type does not count.
func findGroup(groups []*rules.RuleGroup, want *rules.RuleGroup) *rules.RuleGroup {
	for _, g := range groups {
		if g.FullName == want.FullName && g.PackageType == want.PackageType {
			return g
		}
	}
	return nil
}
