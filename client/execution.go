package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/xraph/drafter/api"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/engine"
)

// StartOption configures a Start call.
type StartOption func(*api.StartRequest)

// WithExecutionID starts under a caller-chosen execution id.
func WithExecutionID(execID string) StartOption {
	return func(r *api.StartRequest) { r.ExecutionID = execID }
}

// Start starts an execution of graph seeded with fields. The outcome is
// either a completed handle or a suspension awaiting Resume.
func (c *Client) Start(ctx context.Context, graph string, fields map[string]any, opts ...StartOption) (*engine.Outcome, error) {
	req := api.StartRequest{Graph: graph, Fields: fields}
	for _, opt := range opts {
		opt(&req)
	}
	var out engine.Outcome
	if err := c.do(ctx, http.MethodPost, "/v1/executions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resume answers the pending suspension of an execution with value.
func (c *Client) Resume(ctx context.Context, execID string, value any) (*engine.Outcome, error) {
	var out engine.Outcome
	path := "/v1/executions/" + url.PathEscape(execID) + "/resume"
	if err := c.do(ctx, http.MethodPost, path, api.ResumeRequest{Value: value}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the last checkpointed view of an execution.
func (c *Client) Get(ctx context.Context, execID string) (*engine.Outcome, error) {
	var out engine.Outcome
	if err := c.get(ctx, "/v1/executions/"+url.PathEscape(execID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Drop abandons an execution.
func (c *Client) Drop(ctx context.Context, execID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/executions/"+url.PathEscape(execID), nil, nil)
}

// ListOpts filters List.
type ListOpts struct {
	Status checkpoint.Status
	Graph  string
	Limit  int
	Offset int
}

// List returns execution summaries, most recently updated first.
func (c *Client) List(ctx context.Context, opts ListOpts) ([]api.ExecutionSummary, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Graph != "" {
		q.Set("graph", opts.Graph)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/v1/executions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp api.ListExecutionsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Executions, nil
}
