package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"ruleflatten/internal/rules"
)

func written() []*rules.RuleGroup {
	return []*rules.RuleGroup{
		{
			FullName:    "Java:Project_10:Corp",
			PackageType: rules.PackageTypeProject,
			Rules: []*rules.Rule{
				{Name: "Foo", Source: "merged body"},
				{Name: "Bar", Source: "other body"},
			},
		},
	}
}

func TestCheck_AllPresent(t *testing.T) {
	w := written()
	retrieved := []*rules.RuleGroup{
		{FullName: "Java:Team:Corp", PackageType: rules.PackageTypeTeam},
		{
			FullName:    "Java:Project_10:Corp",
			PackageType: rules.PackageTypeProject,
			Rules: []*rules.Rule{
				{Name: "Bar", Source: "other body"},
				{Name: "Foo", Source: "merged body"},
			},
		},
	}

	report := New(zap.NewNop()).Check(retrieved, w)
	assert.True(t, report.Clean())
	assert.Equal(t, 1, report.GroupsChecked)
	assert.Equal(t, 2, report.RulesChecked)
}

func TestCheck_MissingGroup(t *testing.T) {
	report := New(zap.NewNop()).Check(nil, written())
	assert.Equal(t, 1, report.GroupsFailed)
	assert.Equal(t, 0, report.RulesChecked, "rules of a missing group are not counted")
	assert.False(t, report.Clean())
}

func TestCheck_ScopeTypeMustMatch(t *testing.T) {
	retrieved := []*rules.RuleGroup{
		{FullName: "Java:Project_10:Corp", PackageType: rules.PackageTypeTeam},
	}
	report := New(zap.NewNop()).Check(retrieved, written())
	assert.Equal(t, 1, report.GroupsFailed, "a full-name match with the wrong scope type does not count")
}

func TestCheck_BodyMismatch(t *testing.T) {
	retrieved := []*rules.RuleGroup{
		{
			FullName:    "Java:Project_10:Corp",
			PackageType: rules.PackageTypeProject,
			Rules: []*rules.Rule{
				{Name: "Foo", Source: "merged body"},
				{Name: "Bar", Source: "service rewrote this"},
			},
		},
	}

	report := New(zap.NewNop()).Check(retrieved, written())
	assert.Equal(t, 0, report.GroupsFailed)
	assert.Equal(t, 1, report.RulesFailed)
	assert.Equal(t, 2, report.RulesChecked)
}

func TestCheck_MissingRule(t *testing.T) {
	retrieved := []*rules.RuleGroup{
		{
			FullName:    "Java:Project_10:Corp",
			PackageType: rules.PackageTypeProject,
			Rules:       []*rules.Rule{{Name: "Foo", Source: "merged body"}},
		},
	}

	report := New(zap.NewNop()).Check(retrieved, written())
	assert.Equal(t, 1, report.RulesFailed)
}
