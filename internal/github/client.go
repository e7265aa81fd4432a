// Package github is the rate-limited, paginated API client the automation
// engine talks to GitHub through. All calls share one limiter; read calls
// get a bounded exponential-backoff retry, mutating calls never do (the
// daemon owns idempotency via the state store).
package github

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Hard ceiling on per_page, matching the upstream API maximum.
const maxPerPageCeiling = 100

const defaultMaxWait = 15 * time.Minute

type Issue struct {
	Number int
	Title  string
	Body   string
	Labels []string
	URL    string
}

type Comment struct {
	ID     int64
	Author string
	Body   string
}

type PullRequest struct {
	Number int
	URL    string
}

// NewPullRequest describes the PR to open after a successful attempt.
type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// IssueUpdate carries the fields of an issue edit; nil means leave alone.
type IssueUpdate struct {
	Title *string
	Body  *string
	State *string
}

// ListOptions bounds one issue listing.
type ListOptions struct {
	Labels   []string
	State    string // defaults to "open"
	PerPage  int    // defaults to the client's default_per_page
	MaxPages int    // 0 = until exhausted
}

type Options struct {
	Token          string
	BaseURL        string // test override
	MaxPerPage     int
	DefaultPerPage int
	MaxWait        time.Duration // rate-limit wait bound
	RetryMaxWait   time.Duration // retry budget for read calls
}

type Client struct {
	gh             *gh.Client
	limiter        *limiter
	maxPerPage     int
	defaultPerPage int
	retryMaxWait   time.Duration
	logger         *slog.Logger
}

func NewClient(ctx context.Context, opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Token == "" {
		return nil, &AuthError{Err: fmt.Errorf("no token configured")}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	ghc := gh.NewClient(oauth2.NewClient(ctx, ts))

	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse base URL: %w", err)
		}
		ghc.BaseURL = base
		ghc.UploadURL = base
	}

	maxPer := opts.MaxPerPage
	if maxPer <= 0 || maxPer > maxPerPageCeiling {
		maxPer = maxPerPageCeiling
	}
	defPer := opts.DefaultPerPage
	if defPer <= 0 || defPer > maxPer {
		defPer = maxPer
	}
	maxWait := opts.MaxWait
	if maxWait == 0 {
		maxWait = defaultMaxWait
	}
	retryMax := opts.RetryMaxWait
	if retryMax == 0 {
		retryMax = 2 * time.Minute
	}

	return &Client{
		gh:             ghc,
		limiter:        newLimiter(maxWait),
		maxPerPage:     maxPer,
		defaultPerPage: defPer,
		retryMaxWait:   retryMax,
		logger:         logger,
	}, nil
}

// do gates one request on the limiter and reconciles afterwards.
func (c *Client) do(ctx context.Context, op func() (*gh.Response, error)) error {
	if err := c.limiter.acquire(ctx); err != nil {
		return err
	}
	resp, err := op()
	if resp != nil {
		c.limiter.reconcile(resp.Rate)
	}
	return classify(resp, err)
}

// doRead adds a bounded exponential-backoff retry around idempotent calls.
func (c *Client) doRead(ctx context.Context, op func() (*gh.Response, error)) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = c.retryMaxWait

	return backoff.Retry(func() error {
		err := c.do(ctx, op)
		if err == nil {
			return nil
		}
		if retryable(err) {
			c.logger.Debug("retrying read call", "err", err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

func (c *Client) perPage(requested int) int {
	if requested <= 0 {
		requested = c.defaultPerPage
	}
	if requested > c.maxPerPage {
		requested = c.maxPerPage
	}
	return requested
}

// ListIssues lazily lists issues, following pagination until exhausted or
// opts.MaxPages is reached. Pull requests surfaced by the issues endpoint
// are skipped.
func (c *Client) ListIssues(ctx context.Context, owner, repo string, opts ListOptions) iter.Seq2[*Issue, error] {
	return func(yield func(*Issue, error) bool) {
		state := opts.State
		if state == "" {
			state = "open"
		}
		lo := &gh.IssueListByRepoOptions{
			State:       state,
			Labels:      opts.Labels,
			ListOptions: gh.ListOptions{PerPage: c.perPage(opts.PerPage)},
		}

		pages := 0
		for {
			var issues []*gh.Issue
			var resp *gh.Response
			err := c.doRead(ctx, func() (*gh.Response, error) {
				var err error
				issues, resp, err = c.gh.Issues.ListByRepo(ctx, owner, repo, lo)
				return resp, err
			})
			if err != nil {
				yield(nil, err)
				return
			}

			for _, gi := range issues {
				if gi.IsPullRequest() {
					continue
				}
				if !yield(toIssue(gi), nil) {
					return
				}
			}

			pages++
			if resp.NextPage == 0 || (opts.MaxPages > 0 && pages >= opts.MaxPages) {
				return
			}
			lo.Page = resp.NextPage
		}
	}
}

func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	var gi *gh.Issue
	err := c.doRead(ctx, func() (*gh.Response, error) {
		var resp *gh.Response
		var err error
		gi, resp, err = c.gh.Issues.Get(ctx, owner, repo, number)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return toIssue(gi), nil
}

// GetIssueComments returns all comments, paginating through the shared limiter.
func (c *Client) GetIssueComments(ctx context.Context, owner, repo string, number int) ([]*Comment, error) {
	lo := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: c.defaultPerPage},
	}

	var all []*Comment
	for {
		var comments []*gh.IssueComment
		var resp *gh.Response
		err := c.doRead(ctx, func() (*gh.Response, error) {
			var err error
			comments, resp, err = c.gh.Issues.ListComments(ctx, owner, repo, number, lo)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, gc := range comments {
			all = append(all, toComment(gc))
		}
		if resp.NextPage == 0 {
			return all, nil
		}
		lo.Page = resp.NextPage
	}
}

func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	return c.do(ctx, func() (*gh.Response, error) {
		_, resp, err := c.gh.Issues.CreateComment(ctx, owner, repo, number,
			&gh.IssueComment{Body: gh.String(body)})
		return resp, err
	})
}

func (c *Client) UpdateIssue(ctx context.Context, owner, repo string, number int, upd IssueUpdate) error {
	return c.do(ctx, func() (*gh.Response, error) {
		_, resp, err := c.gh.Issues.Edit(ctx, owner, repo, number, &gh.IssueRequest{
			Title: upd.Title,
			Body:  upd.Body,
			State: upd.State,
		})
		return resp, err
	})
}

func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, req NewPullRequest) (*PullRequest, error) {
	var pr *gh.PullRequest
	err := c.do(ctx, func() (*gh.Response, error) {
		var resp *gh.Response
		var err error
		pr, resp, err = c.gh.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
			Title: gh.String(req.Title),
			Body:  gh.String(req.Body),
			Head:  gh.String(req.Head),
			Base:  gh.String(req.Base),
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return &PullRequest{Number: pr.GetNumber(), URL: pr.GetHTMLURL()}, nil
}

// CreatePRComment posts a plain (non-progress) comment on a pull request.
func (c *Client) CreatePRComment(ctx context.Context, owner, repo string, number int, body string) error {
	return c.CreateIssueComment(ctx, owner, repo, number, body)
}

// progressMarker identifies the single progress comment on a PR.
const progressMarker = "<!-- issuepilot:progress -->"

// UpdatePRProgress upserts the progress comment on a PR: the first call
// creates it, later calls append a timestamped line to the same comment.
func (c *Client) UpdatePRProgress(ctx context.Context, owner, repo string, number int, update string) error {
	comments, err := c.GetIssueComments(ctx, owner, repo, number)
	if err != nil {
		return fmt.Errorf("list PR comments: %w", err)
	}

	line := fmt.Sprintf("- %s %s", time.Now().UTC().Format(time.RFC3339), update)

	for _, cm := range comments {
		if !strings.Contains(cm.Body, progressMarker) {
			continue
		}
		body := cm.Body + "\n" + line
		return c.do(ctx, func() (*gh.Response, error) {
			_, resp, err := c.gh.Issues.EditComment(ctx, owner, repo, cm.ID,
				&gh.IssueComment{Body: gh.String(body)})
			return resp, err
		})
	}

	body := progressMarker + "\n### Progress\n" + line
	return c.CreateIssueComment(ctx, owner, repo, number, body)
}

func toIssue(gi *gh.Issue) *Issue {
	labels := make([]string, 0, len(gi.Labels))
	for _, l := range gi.Labels {
		labels = append(labels, l.GetName())
	}
	return &Issue{
		Number: gi.GetNumber(),
		Title:  gi.GetTitle(),
		Body:   gi.GetBody(),
		Labels: labels,
		URL:    gi.GetHTMLURL(),
	}
}

func toComment(gc *gh.IssueComment) *Comment {
	return &Comment{
		ID:     gc.GetID(),
		Author: gc.GetUser().GetLogin(),
		Body:   gc.GetBody(),
	}
}
