// Package sourcehost adapts the GitHub REST API to the port.SourceHost
// contract: candidate listing, webhook registration and analysis dispatch.
package sourcehost

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/docsight/docsight/internal/domain"
)

const defaultAPIBaseURL = "https://api.github.com"

// reposPerPage is the GitHub maximum page size; fewer round trips per list.
const reposPerPage = 100

// GitHubHost implements port.SourceHost against the GitHub REST API using
// the identity's OAuth access token.
type GitHubHost struct {
	apiBaseURL string
	webhookURL string // public callback endpoint installed on each repo
	httpClient *http.Client
}

// NewGitHubHost creates a GitHub adapter. webhookURL is the endpoint GitHub
// will deliver push/PR events to.
func NewGitHubHost(webhookURL string) *GitHubHost {
	return &GitHubHost{
		apiBaseURL: defaultAPIBaseURL,
		webhookURL: webhookURL,
		httpClient: &http.Client{},
	}
}

// NewGitHubHostWithBaseURL creates an adapter against a custom API base URL.
// Used by tests to point at a local server.
func NewGitHubHostWithBaseURL(apiBaseURL, webhookURL string) *GitHubHost {
	h := NewGitHubHost(webhookURL)
	h.apiBaseURL = apiBaseURL
	return h
}

// githubRepo is the subset of the GitHub repo payload the dashboard needs.
type githubRepo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
	HTMLURL       string `json:"html_url"`
	Language      string `json:"language"`
	Stars         int    `json:"stargazers_count"`
	DefaultBranch string `json:"default_branch"`
	UpdatedAt     string `json:"updated_at"`
}

// ListRepositories returns all repositories the identity can administer,
// following pagination until a short page.
func (g *GitHubHost) ListRepositories(ctx context.Context, identity *domain.Identity) ([]domain.CandidateRepo, error) {
	var out []domain.CandidateRepo

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/user/repos?per_page=%d&page=%d&sort=updated", g.apiBaseURL, reposPerPage, page)
		var repos []githubRepo
		if err := g.doJSON(ctx, identity, http.MethodGet, url, nil, &repos); err != nil {
			return nil, fmt.Errorf("github: list repos page %d: %w", page, err)
		}

		for _, r := range repos {
			branch := r.DefaultBranch
			if branch == "" {
				branch = "main"
			}
			out = append(out, domain.CandidateRepo{
				ExternalID:    strconv.Itoa(r.ID),
				Name:          r.Name,
				FullName:      r.FullName,
				OwnerLogin:    r.Owner.Login,
				Description:   r.Description,
				IsPrivate:     r.Private,
				Language:      r.Language,
				DefaultBranch: branch,
				HTMLURL:       r.HTMLURL,
				Stars:         r.Stars,
				UpdatedAt:     r.UpdatedAt,
			})
		}

		if len(repos) < reposPerPage {
			return out, nil
		}
	}
}

// RegisterWebhook installs a push/PR webhook and returns its id and a fresh
// shared secret.
func (g *GitHubHost) RegisterWebhook(ctx context.Context, identity *domain.Identity, fullName string) (string, string, error) {
	secret := generateSecret()

	body := map[string]any{
		"name":   "web",
		"active": true,
		"events": []string{"push", "pull_request"},
		"config": map[string]any{
			"url":          g.webhookURL,
			"content_type": "json",
			"secret":       secret,
		},
	}

	var hook struct {
		ID int `json:"id"`
	}
	url := fmt.Sprintf("%s/repos/%s/hooks", g.apiBaseURL, fullName)
	if err := g.doJSON(ctx, identity, http.MethodPost, url, body, &hook); err != nil {
		return "", "", fmt.Errorf("github: register webhook for %s: %w", fullName, err)
	}
	return strconv.Itoa(hook.ID), secret, nil
}

// TriggerAnalysis fires a repository_dispatch event that the analysis
// pipeline listens for.
func (g *GitHubHost) TriggerAnalysis(ctx context.Context, identity *domain.Identity, fullName string) error {
	body := map[string]any{"event_type": domain.JobTypeInitialIngestion}
	url := fmt.Sprintf("%s/repos/%s/dispatches", g.apiBaseURL, fullName)
	if err := g.doJSON(ctx, identity, http.MethodPost, url, body, nil); err != nil {
		return fmt.Errorf("github: trigger analysis for %s: %w", fullName, err)
	}
	return nil
}

// doJSON performs an authenticated GitHub API call and decodes the response
// into out when non-nil.
func (g *GitHubHost) doJSON(ctx context.Context, identity *domain.Identity, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+identity.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func generateSecret() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
