package client

import (
	"context"
	"net/url"

	"github.com/xraph/drafter/graph"
)

// Graphs returns the topology of every graph the server runs.
func (c *Client) Graphs(ctx context.Context) ([]graph.Topology, error) {
	var out []graph.Topology
	if err := c.get(ctx, "/v1/graphs", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Graph returns the topology of one graph.
func (c *Client) Graph(ctx context.Context, name string) (*graph.Topology, error) {
	var out graph.Topology
	if err := c.get(ctx, "/v1/graphs/"+url.PathEscape(name), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
