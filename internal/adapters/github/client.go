// Package github fetches the raw deployment, pull-request, and incident-issue
// events a sync cycle feeds into the daily reducer.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dorapulse/dora-pulse/internal/config"
	"github.com/dorapulse/dora-pulse/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultPageSize = 100

type Client struct {
	apiURL     string
	graphqlURL string
	token      string
	envs       []string
	label      string
	http       *http.Client
	log        zerolog.Logger

	pageSize       int
	restPace       *rate.Limiter
	graphqlPace    *rate.Limiter
	rateLimitPause time.Duration
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		apiURL:     strings.TrimRight(cfg.GitHubAPIURL, "/"),
		graphqlURL: cfg.GitHubGraphQLURL,
		token:      cfg.GitHubToken,
		envs:       cfg.ProductionEnvs,
		label:      cfg.FailureIssueLabel,
		http:       &http.Client{Timeout: cfg.HTTPTimeout},
		log:        log,

		pageSize:       defaultPageSize,
		restPace:       rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		graphqlPace:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		rateLimitPause: 10 * time.Second,
	}
}

// FetchAll gathers everything since the watermark for one "org/repo"
// coordinate. Fetch errors on individual resources are recovered locally:
// the affected listing stops early and whatever was gathered is returned.
func (c *Client) FetchAll(ctx context.Context, repo string, since time.Time) (domain.RawData, error) {
	org, name, ok := strings.Cut(repo, "/")
	if ok {
		ok = org != "" && name != ""
	}
	if !ok { return domain.RawData{}, fmt.Errorf("github: invalid repo coordinate %q", repo) }

	return domain.RawData{
		Deployments: c.Deployments(ctx, org, name, since),
		PRs:         c.MergedPulls(ctx, org, name, since),
		Issues:      c.ClosedFailureIssues(ctx, org, name, since),
	}, nil
}

// MergedPulls lists closed PRs against main merged after the watermark.
func (c *Client) MergedPulls(ctx context.Context, org, repo string, since time.Time) []domain.PullRequest {
	q := url.Values{}
	q.Set("state", "closed")
	q.Set("base", "main")
	u := fmt.Sprintf("%s/repos/%s/%s/pulls", c.apiURL, org, repo)

	var out []domain.PullRequest
	for pr := range restPages[domain.PullRequest](ctx, c, u, q) {
		if pr.MergedAt != nil && parsedAfter(*pr.MergedAt, since) {
			out = append(out, pr)
		}
	}
	return out
}

// ClosedFailureIssues lists failure-labeled issues closed after the watermark.
func (c *Client) ClosedFailureIssues(ctx context.Context, org, repo string, since time.Time) []domain.Issue {
	q := url.Values{}
	q.Set("labels", c.label)
	q.Set("state", "closed")
	u := fmt.Sprintf("%s/repos/%s/%s/issues", c.apiURL, org, repo)

	var out []domain.Issue
	for is := range restPages[domain.Issue](ctx, c, u, q) {
		if is.ClosedAt != nil && parsedAfter(*is.ClosedAt, since) {
			out = append(out, is)
		}
	}
	return out
}

// restPages is a lazy sequence over a page-numbered REST listing. Iteration
// drives page advancement; it ends on a short page, an empty page, or a fetch
// error (logged, partial results stand). Each call restarts from page 1.
func restPages[T any](ctx context.Context, c *Client, base string, q url.Values) iter.Seq[T] {
	return func(yield func(T) bool) {
		page := 1
		for {
			pageQ := url.Values{}
			for k, vs := range q {
				pageQ[k] = vs
			}
			pageQ.Set("per_page", strconv.Itoa(c.pageSize))
			pageQ.Set("page", strconv.Itoa(page))

			var items []T
			if err := c.getJSON(ctx, base+"?"+pageQ.Encode(), &items); err != nil {
				c.log.Warn().Err(err).Int("page", page).Str("url", base).Msg("github rest fetch stopped early")
				return
			}
			if len(items) == 0 { return }
			for _, it := range items {
				if !yield(it) { return }
			}
			if len(items) < c.pageSize { return }
			page++
			if err := c.restPace.Wait(ctx); err != nil { return }
		}
	}
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil { return err }
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" { req.Header.Set("Authorization", "Bearer "+c.token) }

	resp, err := c.http.Do(req)
	if err != nil { return err }
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		// Rate limited. Pause before surfacing so the remaining quota is not
		// burned by the rest of this cycle; the next scheduled cycle resumes
		// from the watermark, so no same-page retry happens here.
		select {
		case <-time.After(c.rateLimitPause):
		case <-ctx.Done():
		}
		return fmt.Errorf("github: rate limit exceeded")
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

const deploymentsQuery = `
query($owner: String!, $repo: String!, $environments: [String!]!, $cursor: String) {
  repository(owner: $owner, name: $repo) {
    deployments(environments: $environments, first: 100, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC}) {
      pageInfo {
        hasNextPage
        endCursor
      }
      nodes {
        createdAt
        statuses(first: 1) {
          nodes {
            state
          }
        }
      }
    }
  }
}`

type deploymentsPage struct {
	Data struct {
		Repository struct {
			Deployments struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Nodes []struct {
					CreatedAt string `json:"createdAt"`
					Statuses  struct {
						Nodes []struct {
							State string `json:"state"`
						} `json:"nodes"`
					} `json:"statuses"`
				} `json:"nodes"`
			} `json:"deployments"`
		} `json:"repository"`
	} `json:"data"`
}

// Deployments walks the GraphQL deployments connection newest-first and stops
// as soon as a node predates the watermark, so deep history is never paged.
func (c *Client) Deployments(ctx context.Context, org, repo string, since time.Time) []domain.Deployment {
	var out []domain.Deployment
	var cursor *string

	for {
		vars := map[string]any{
			"owner":        org,
			"repo":         repo,
			"environments": c.envs,
			"cursor":       cursor,
		}
		var page deploymentsPage
		if err := c.graphql(ctx, deploymentsQuery, vars, &page); err != nil {
			c.log.Warn().Err(err).Str("repo", org+"/"+repo).Msg("github graphql fetch stopped early")
			return out
		}

		deps := page.Data.Repository.Deployments
		reachedWatermark := false
		for _, n := range deps.Nodes {
			created, err := time.Parse(time.RFC3339, n.CreatedAt)
			if err != nil { continue }
			if created.Before(since) {
				reachedWatermark = true
				break
			}
			state := ""
			if len(n.Statuses.Nodes) > 0 { state = n.Statuses.Nodes[0].State }
			out = append(out, domain.Deployment{CreatedAt: n.CreatedAt, Conclusion: conclusionFor(state)})
		}

		if reachedWatermark || !deps.PageInfo.HasNextPage { return out }
		cursor = &deps.PageInfo.EndCursor
		if err := c.graphqlPace.Wait(ctx); err != nil { return out }
	}
}

func (c *Client) graphql(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil { return err }

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil { return err }
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" { req.Header.Set("Authorization", "Bearer "+c.token) }

	resp, err := c.http.Do(req)
	if err != nil { return err }
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github graphql status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// conclusionFor maps the latest deployment status to a conclusion.
func conclusionFor(state string) string {
	switch state {
	case "SUCCESS":
		return domain.ConclusionSuccess
	case "FAILURE", "ERROR":
		return domain.ConclusionFailure
	default:
		return domain.ConclusionPending
	}
}

func parsedAfter(ts string, since time.Time) bool {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil { return false }
	return t.After(since)
}
