// Package rules provides the shared entity types used across ruleflatten packages.
// Everything here mirrors the records served by the rule-management service;
// loosely-keyed payloads are decoded into these structs at the store boundary
// so malformed data is rejected before the merge engine ever sees it.
package rules

import (
	"fmt"
	"strings"
)

// PackageType discriminates the scope that owns a rule group.
type PackageType string

const (
	// PackageTypeProject marks a rule group owned by a single project.
	PackageTypeProject PackageType = "Project"
	// PackageTypeTeam marks a rule group owned by a team.
	PackageTypeTeam PackageType = "Team"
)

// Rule statuses as reported by the rule-management service.
const (
	StatusExisting = "Existing"
	StatusNew      = "New"
)

// Sentinels for rules that have not been persisted yet.
const (
	UnpersistedRuleID    = 0
	UnlinkedPackageID    = -1
	UnpersistedVersion   = 0
	RootTeamParentID     = 0
	UnownedTeamID        = 0
	UnpersistedPackageID = 0
)

// Project is a single analyzed project. Each project belongs to exactly
// one team.
type Project struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	TeamID int    `json:"teamId"`
}

// Team is a node in the team forest. ParentID of 0 marks a root team.
type Team struct {
	ID       int    `json:"id"`
	FullName string `json:"fullName"`
	ParentID int    `json:"parentId"`
}

// Rule is a single named rule customization. Name is the join key across
// scopes: two rules with the same name in different groups are the same
// logical rule customized at different levels.
type Rule struct {
	ID          int    `json:"ruleId"`
	Name        string `json:"name"`
	Source      string `json:"source"`
	VersionCode int    `json:"ruleVersionCode"`
	Status      string `json:"status"`
	PackageID   int    `json:"packageId"`
}

// Clone returns a shallow copy of the rule. The merge engine clones before
// resetting identity fields so the inventory's copy is never mutated.
func (r *Rule) Clone() *Rule {
	c := *r
	return &c
}

// RuleGroup is a named, language-tagged collection of rules owned by exactly
// one scope. Groups retrieved from the store are treated as read-only;
// synthesized groups only ever have rules appended.
type RuleGroup struct {
	PackageID    int         `json:"packageId"`
	Name         string      `json:"name"`
	FullName     string      `json:"packageFullName"`
	PackageType  PackageType `json:"packageType"`
	ProjectID    int         `json:"projectId"`
	OwningTeam   int         `json:"owningTeam"`
	LanguageID   int         `json:"language"`
	LanguageName string      `json:"languageName"`
	Description  string      `json:"description"`
	IsEncrypted  bool        `json:"isEncrypted"`
	IsReadOnly   bool        `json:"isReadOnly"`
	Status       string      `json:"status"`
	Rules        []*Rule     `json:"rules"`
}

// RuleByName returns the group's rule with the given name, or nil.
func (g *RuleGroup) RuleByName(name string) *Rule {
	for _, r := range g.Rules {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Validate rejects records that would otherwise fail deep inside the merge.
func (g *RuleGroup) Validate() error {
	if g.FullName == "" {
		return fmt.Errorf("rule group %d: empty full name", g.PackageID)
	}
	if g.PackageType != PackageTypeProject && g.PackageType != PackageTypeTeam {
		return fmt.Errorf("rule group %q: unknown package type %q", g.FullName, g.PackageType)
	}
	for _, r := range g.Rules {
		if r == nil {
			return fmt.Errorf("rule group %q: nil rule entry", g.FullName)
		}
		if r.Name == "" {
			return fmt.Errorf("rule group %q: rule %d has empty name", g.FullName, r.ID)
		}
	}
	return nil
}

// Analysis is the per-language completion record of a finished analysis run.
type Analysis struct {
	ProjectID int   `json:"projectId"`
	Languages []int `json:"languageIds"`
}

// ProjectFullName builds the deterministic full name of a synthesized
// project-scope rule group: {language}:Project_{id}:{baseName}.
func ProjectFullName(languageName string, projectID int, baseName string) string {
	return fmt.Sprintf("%s:Project_%d:%s", languageName, projectID, baseName)
}

// SanitizeFullName turns a group full name into an identifier-safe token
// by replacing the scope delimiters with underscores.
func SanitizeFullName(fullName string) string {
	return strings.ReplaceAll(fullName, ":", "_")
}
