package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"ruleflatten/internal/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "test-token", 5*time.Second, zap.NewNop())
	t.Cleanup(c.client.CloseIdleConnections)
	return c
}

func TestListProjects(t *testing.T) {
	var gotAuth, gotRequestID string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		assert.Equal(t, "/api/projects", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]*rules.Project{
			{ID: 10, Name: "P1", TeamID: 2},
		})
	}))

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "P1", projects[0].Name)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.NotEmpty(t, gotRequestID)
}

func TestFetchRuleGroups(t *testing.T) {
	t.Run("filters out-of-scope groups", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"isSuccessful": true,
				"ruleGroups": []map[string]any{
					{"packageFullName": "Java:Team:Corp", "packageType": "Team", "owningTeam": 1},
					{"packageFullName": "Java:Base:Default", "packageType": "Base"},
				},
			})
		}))

		groups, err := client.FetchRuleGroups(context.Background())
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "Java:Team:Corp", groups[0].FullName)
	})

	t.Run("failure envelope becomes an error", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"isSuccessful": false,
				"errorMessage": "backend unavailable",
			})
		}))

		_, err := client.FetchRuleGroups(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend unavailable")
	})

	t.Run("malformed record is rejected", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"isSuccessful": true,
				"ruleGroups": []map[string]any{
					{"packageFullName": "", "packageType": "Team"},
				},
			})
		}))

		_, err := client.FetchRuleGroups(context.Background())
		require.Error(t, err)
	})

	t.Run("http error status", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))

		_, err := client.FetchRuleGroups(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
	})
}

func TestFetchLatestFinishedAnalysis(t *testing.T) {
	t.Run("latest finished", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/projects/10/analyses", r.URL.Path)
			assert.Equal(t, "Finished", r.URL.Query().Get("status"))
			assert.Equal(t, "1", r.URL.Query().Get("last"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"analyses": []map[string]any{
					{"projectId": 10, "languageIds": []int{1, 3}},
				},
			})
		}))

		analysis, err := client.FetchLatestFinishedAnalysis(context.Background(), 10)
		require.NoError(t, err)
		require.NotNil(t, analysis)
		assert.Equal(t, []int{1, 3}, analysis.Languages)
	})

	t.Run("no finished analysis", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"analyses": []any{}})
		}))

		analysis, err := client.FetchLatestFinishedAnalysis(context.Background(), 10)
		require.NoError(t, err)
		assert.Nil(t, analysis)
	})
}

func TestWriteRuleGroups(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var received struct {
			RuleGroups []*rules.RuleGroup `json:"ruleGroups"`
		}
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			_ = json.NewEncoder(w).Encode(map[string]any{"isSuccessful": true})
		}))

		groups := []*rules.RuleGroup{{
			FullName:    "Java:Project_10:Corp",
			PackageType: rules.PackageTypeProject,
		}}
		require.NoError(t, client.WriteRuleGroups(context.Background(), groups))
		require.Len(t, received.RuleGroups, 1)
		assert.Equal(t, "Java:Project_10:Corp", received.RuleGroups[0].FullName)
	})

	t.Run("failure envelope becomes an error", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"isSuccessful": false,
				"errorMessage": "timeout",
			})
		}))

		err := client.WriteRuleGroups(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})
}
