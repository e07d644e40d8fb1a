package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ruleflatten/internal/rules"
)

// Client is the HTTP implementation of Store.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the rule-management service at baseURL.
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// envelope is the service's response wrapper. Failure is signaled by the
// flag and message, not by transport errors.
type envelope struct {
	IsSuccessful bool               `json:"isSuccessful"`
	ErrorMessage string             `json:"errorMessage"`
	RuleGroups   []*rules.RuleGroup `json:"ruleGroups,omitempty"`
}

// ListProjects retrieves all projects.
func (c *Client) ListProjects(ctx context.Context) ([]*rules.Project, error) {
	var projects []*rules.Project
	if err := c.get(ctx, "/api/projects", &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ListTeams retrieves all teams.
func (c *Client) ListTeams(ctx context.Context) ([]*rules.Team, error) {
	var teams []*rules.Team
	if err := c.get(ctx, "/api/teams", &teams); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// FetchRuleGroups retrieves the full rule-group collection, keeps the
// project- and team-scope groups, and validates every record.
func (c *Client) FetchRuleGroups(ctx context.Context) ([]*rules.RuleGroup, error) {
	var env envelope
	if err := c.get(ctx, "/api/rulegroups", &env); err != nil {
		return nil, fmt.Errorf("fetch rule groups: %w", err)
	}
	if !env.IsSuccessful {
		return nil, fmt.Errorf("fetch rule groups: service reported failure: %s", env.ErrorMessage)
	}

	var groups []*rules.RuleGroup
	for _, g := range env.RuleGroups {
		if g.PackageType != rules.PackageTypeProject && g.PackageType != rules.PackageTypeTeam {
			c.logger.Debug("Ignoring rule group outside project/team scope",
				zap.String("full_name", g.FullName),
				zap.String("package_type", string(g.PackageType)))
			continue
		}
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("fetch rule groups: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// analysisPage is the service's analysis listing payload.
type analysisPage struct {
	Analyses []*rules.Analysis `json:"analyses"`
}

// FetchLatestFinishedAnalysis returns the newest finished analysis for a
// project, or nil when the project has never finished one.
func (c *Client) FetchLatestFinishedAnalysis(ctx context.Context, projectID int) (*rules.Analysis, error) {
	var page analysisPage
	path := fmt.Sprintf("/api/projects/%d/analyses?status=Finished&last=1", projectID)
	if err := c.get(ctx, path, &page); err != nil {
		return nil, fmt.Errorf("fetch latest analysis for project %d: %w", projectID, err)
	}
	if len(page.Analyses) == 0 {
		return nil, nil
	}
	return page.Analyses[0], nil
}

// WriteRuleGroups uploads the flattened rule groups in one call.
func (c *Client) WriteRuleGroups(ctx context.Context, groups []*rules.RuleGroup) error {
	payload := struct {
		RuleGroups []*rules.RuleGroup `json:"ruleGroups"`
	}{RuleGroups: groups}

	var env envelope
	if err := c.post(ctx, "/api/rulegroups", payload, &env); err != nil {
		return fmt.Errorf("write rule groups: %w", err)
	}
	if !env.IsSuccessful {
		return fmt.Errorf("write rule groups: service reported failure: %s", env.ErrorMessage)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("Remote call",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("request_id", requestID))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
