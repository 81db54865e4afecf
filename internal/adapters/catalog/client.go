// Package catalog looks up which services exist and where their source lives.
// The catalog itself is an external collaborator; this client only reads.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/dorapulse/dora-pulse/internal/config"
	"github.com/dorapulse/dora-pulse/internal/domain"
	"github.com/rs/zerolog"
)

const (
	slugAnnotation     = "github.com/project-slug"
	locationAnnotation = "backstage.io/source-location"
)

var sourceLocationRe = regexp.MustCompile(`github\.com/([^/]+/[^/]+)`)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.CatalogBaseURL, "/"),
		token:   cfg.CatalogToken,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		log:     log,
	}
}

type entity struct {
	Metadata struct {
		Name        string            `json:"name"`
		Annotations map[string]string `json:"annotations"`
	} `json:"metadata"`
}

// Services lists catalog components of type service with their repository
// coordinates. Components without a usable repo annotation come back with an
// empty Repo; the collector filters those out.
func (c *Client) Services(ctx context.Context) ([]domain.ServiceRef, error) {
	if c.baseURL == "" { return nil, errors.New("catalog: empty baseURL") }

	q := url.Values{}
	q.Set("filter", "kind=component,spec.type=service")
	q.Add("fields", "metadata.name")
	q.Add("fields", "metadata.annotations")
	u := c.baseURL + "/entities?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil { return nil, err }
	if c.token != "" { req.Header.Set("Authorization", "Bearer "+c.token) }

	resp, err := c.http.Do(req)
	if err != nil { return nil, err }
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("catalog api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var items []entity
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil { return nil, err }

	out := make([]domain.ServiceRef, 0, len(items))
	for _, it := range items {
		if it.Metadata.Name == "" { continue }
		out = append(out, domain.ServiceRef{
			Name: it.Metadata.Name,
			Repo: repoSlug(it.Metadata.Annotations),
		})
	}
	return out, nil
}

// repoSlug extracts "org/repo" from the project-slug annotation, falling back
// to parsing the source-location URL.
func repoSlug(annotations map[string]string) string {
	if slug := annotations[slugAnnotation]; slug != "" { return slug }
	if loc := annotations[locationAnnotation]; loc != "" {
		if m := sourceLocationRe.FindStringSubmatch(loc); m != nil {
			return m[1]
		}
	}
	return ""
}
