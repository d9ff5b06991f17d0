// SPDX-License-Identifier: AGPL-3.0-or-later

package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/go-github/v42/github"
	"golang.org/x/oauth2"
)

const perPage = 100

// Options configures the GitHub client.
type Options struct {
	Token string
	// BaseURL selects a GitHub Enterprise API endpoint; empty means github.com.
	BaseURL string
}

// GitHub implements Client on the GitHub REST API.
type GitHub struct {
	client *github.Client
}

var _ Client = (*GitHub)(nil)

// NewGitHub builds a client authenticated with opts.Token when set.
func NewGitHub(ctx context.Context, opts Options) (*GitHub, error) {
	var hc *http.Client
	if opts.Token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}
	if opts.BaseURL == "" {
		return &GitHub{client: github.NewClient(hc)}, nil
	}
	c, err := github.NewEnterpriseClient(opts.BaseURL, opts.BaseURL, hc)
	if err != nil {
		return nil, fmt.Errorf("github enterprise url %q: %w", opts.BaseURL, err)
	}
	return &GitHub{client: c}, nil
}

// NewGitHubFromClient wraps an existing go-github client.
func NewGitHubFromClient(c *github.Client) *GitHub {
	return &GitHub{client: c}
}

func (g *GitHub) ListRepositories(ctx context.Context, org string) ([]Repository, error) {
	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []Repository
	for {
		repos, resp, err := g.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing repositories of %s: %w", org, err)
		}
		for _, r := range repos {
			if r.GetArchived() {
				continue
			}
			out = append(out, Repository{
				Name:          r.GetName(),
				Owner:         r.GetOwner().GetLogin(),
				DefaultBranch: r.GetDefaultBranch(),
				CloneURL:      r.GetCloneURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *GitHub) FindOpenPR(ctx context.Context, owner, repo, headPrefix string) (*PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		prs, resp, err := g.client.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests of %s/%s: %w", owner, repo, err)
		}
		for _, pr := range prs {
			if strings.HasPrefix(pr.GetHead().GetRef(), headPrefix) {
				return convertPR(pr), nil
			}
		}
		if resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

func (g *GitHub) CreatePR(ctx context.Context, owner, repo string, pr NewPullRequest) (*PullRequest, error) {
	created, _, err := g.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.Head),
		Base:  github.String(pr.Base),
		Body:  github.String(pr.Body),
	})
	if err != nil {
		if alreadyExists(err) {
			return nil, fmt.Errorf("%s/%s %s: %w", owner, repo, pr.Head, ErrPRExists)
		}
		return nil, fmt.Errorf("creating pull request on %s/%s: %w", owner, repo, err)
	}
	return convertPR(created), nil
}

func convertPR(pr *github.PullRequest) *PullRequest {
	return &PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
		Head:   pr.GetHead().GetRef(),
	}
}

func alreadyExists(err error) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) {
		return false
	}
	if ghErr.Response != nil && ghErr.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	for _, e := range ghErr.Errors {
		if strings.Contains(strings.ToLower(e.Message), "already exists") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(ghErr.Message), "already exists")
}
