package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"toolcall/internal/domain"
)

const (
	defaultGitHubAPI     = "https://api.github.com"
	githubTokenEnv       = "GITHUB_TOKEN"
	githubMaxBodyBytes   = 1 << 20
	githubErrorBodyBytes = 512
)

// ErrMissingGitHubToken is returned when no credential is configured. The
// tool fails closed: the dispatcher surfaces it as an internal failure.
var ErrMissingGitHubToken = errors.New("GITHUB_TOKEN is not set in your environment")

// LatestCommitTool fetches the newest commit of a GitHub repository.
type LatestCommitTool struct {
	client       *http.Client
	apiBase      string
	token        string
	defaultOwner string
	defaultRepo  string
	getenv       func(string) string
}

type GitHubConfig struct {
	APIBase      string
	Token        string // falls back to $GITHUB_TOKEN on every call
	DefaultOwner string
	DefaultRepo  string
	Timeout      time.Duration
}

func NewLatestCommitTool(cfg GitHubConfig) *LatestCommitTool {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultGitHubAPI
	}
	return &LatestCommitTool{
		client:       newHTTPClient(cfg.Timeout),
		apiBase:      strings.TrimRight(cfg.APIBase, "/"),
		token:        cfg.Token,
		defaultOwner: cfg.DefaultOwner,
		defaultRepo:  cfg.DefaultRepo,
		getenv:       os.Getenv,
	}
}

func (t *LatestCommitTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{
		ID:          "latest_commit",
		Name:        "Fetch Latest Commit",
		Description: "Fetch the latest commit from a GitHub repository using the REST API.",
		Parameters:  map[string]string{"owner": "string", "repo": "string"},
	}
}

func (t *LatestCommitTool) Execute(ctx context.Context, params map[string]any, tc domain.Context) (domain.Result, error) {
	token := t.token
	if token == "" {
		token = t.getenv(githubTokenEnv)
	}
	if token == "" {
		return domain.Result{}, ErrMissingGitHubToken
	}

	tc = ensureContext(tc)
	owner := ArgsStringDefault(params, "owner", t.defaultOwner)
	repo := ArgsStringDefault(params, "repo", t.defaultRepo)

	commit, err := t.fetch(ctx, token, owner, repo)
	if err != nil {
		out := map[string]any{"error": err.Error()}
		tc[KeyLatestCommit] = out
		return domain.Reported(out, tc), nil
	}
	tc[KeyLatestCommit] = commit
	return domain.OK(commit, tc), nil
}

func (t *LatestCommitTool) fetch(ctx context.Context, token, owner, repo string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/commits", t.apiBase, url.PathEscape(owner), url.PathEscape(repo))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("GitHub request failed: %w", err)
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgentString)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GitHub request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, githubMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("GitHub response read failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		text := string(body)
		if len(text) > githubErrorBodyBytes {
			text = text[:githubErrorBodyBytes]
		}
		return nil, fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, text)
	}

	if !gjson.ValidBytes(body) {
		return nil, errors.New("GitHub API returned invalid JSON")
	}
	latest := gjson.GetBytes(body, "0")
	if !latest.Exists() {
		return nil, errors.New("No commits found.")
	}

	return map[string]any{
		"sha":     latest.Get("sha").String(),
		"message": latest.Get("commit.message").String(),
		"author":  latest.Get("commit.author.name").String(),
	}, nil
}
