package inventory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ruleflatten/internal/rules"
)

func groupFixtures() []*rules.RuleGroup {
	return []*rules.RuleGroup{
		{
			PackageID:   100,
			Name:        "Corp",
			FullName:    "Java:Team:Corp",
			PackageType: rules.PackageTypeTeam,
			OwningTeam:  1,
			Rules: []*rules.Rule{
				{ID: 1000, Name: "Foo", PackageID: 100},
				{ID: 1001, Name: "Bar", PackageID: 100},
			},
		},
		{
			PackageID:   200,
			Name:        "Custom",
			FullName:    "Java:Project_10:Custom",
			PackageType: rules.PackageTypeProject,
			ProjectID:   10,
			Rules: []*rules.Rule{
				{ID: 2000, Name: "Foo", PackageID: 200},
			},
		},
	}
}

func TestBuild_Indexes(t *testing.T) {
	groups := groupFixtures()
	idx, err := Build(groups, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, groups, idx.Groups())
	assert.Equal(t, "Java:Team:Corp", idx.GroupOfRule(1001).FullName)
	assert.Equal(t, "Java:Project_10:Custom", idx.GroupOfRule(2000).FullName)
	assert.Nil(t, idx.GroupOfRule(9999))

	require.Len(t, idx.TeamRules(1), 2)
	assert.Equal(t, "Foo", idx.TeamRules(1)[0].Name)
	require.Len(t, idx.ProjectRules(10), 1)
	assert.Empty(t, idx.ProjectRules(11))
	assert.Empty(t, idx.TeamRules(2))
}

func TestBuild_DuplicateRuleIDIsFatal(t *testing.T) {
	groups := groupFixtures()
	groups[1].Rules[0].ID = 1000 // collides with the team-scope Foo

	_, err := Build(groups, zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateRuleID))
}
