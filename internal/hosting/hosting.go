// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hosting talks to the code hosting API: repository discovery and pull requests.
package hosting

import (
	"context"
	"errors"
)

// ErrPRExists is returned by CreatePR when an open pull request already exists for the head branch.
var ErrPRExists = errors.New("pull request already exists")

// Repository is one repository of the organization.
type Repository struct {
	Name          string `json:"name"`
	Owner         string `json:"owner"`
	DefaultBranch string `json:"default_branch"`
	CloneURL      string `json:"clone_url"`
	Archived      bool   `json:"archived"`
}

// PullRequest references an opened pull request.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Head   string `json:"head"`
}

// NewPullRequest describes a pull request to open.
type NewPullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// Client is the subset of the hosting API cfgsync uses.
type Client interface {
	// ListRepositories returns the non-archived repositories of org sorted by name.
	ListRepositories(ctx context.Context, org string) ([]Repository, error)
	// FindOpenPR returns the first open pull request whose head branch starts with
	// headPrefix, or nil when there is none.
	FindOpenPR(ctx context.Context, owner, repo, headPrefix string) (*PullRequest, error)
	// CreatePR opens a pull request. It returns ErrPRExists when one is already open for the head.
	CreatePR(ctx context.Context, owner, repo string, pr NewPullRequest) (*PullRequest, error)
}
