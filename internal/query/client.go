// Package query speaks the command-line protocol of the external graph query
// engine. Each call scopes one query to one graph file and decodes the JSON
// the engine prints on stdout.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/vk/sugarpipe/internal/config"
	"github.com/vk/sugarpipe/internal/ctxlog"
	"github.com/vk/sugarpipe/internal/toolexec"
)

// ErrUnrelated reports a request identifier that has no script content.
var ErrUnrelated = errors.New("request is not associated with script content")

// RequestInfo is the detail record of one request.
type RequestInfo struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Client issues queries against graph files.
type Client struct {
	runner toolexec.Runner
	tool   config.Tool
}

// NewClient creates a Client that launches tool through runner.
func NewClient(runner toolexec.Runner, tool config.Tool) *Client {
	return &Client{runner: runner, tool: tool}
}

// AdblockMatches returns the identifiers of the network edges in graph that
// match filterList, in engine order. An empty filterList lets the engine use
// its built-in list.
func (c *Client) AdblockMatches(ctx context.Context, graph, filterList string) ([]string, error) {
	args := []string{"adblock_rules"}
	if filterList != "" {
		args = append(args, "-l", filterList)
	}
	out, err := c.run(ctx, graph, args...)
	if err != nil {
		return nil, err
	}

	var records []struct {
		Requests [][]json.RawMessage `json:"requests"`
	}
	if err := json.Unmarshal(out, &records); err != nil {
		return nil, fmt.Errorf("failed to decode adblock_rules response: %w", err)
	}

	var edges []string
	for i, record := range records {
		for j, pair := range record.Requests {
			if len(pair) < 2 {
				return nil, fmt.Errorf("adblock_rules record %d pair %d: expected [tag, edgeId], got %d elements", i, j, len(pair))
			}
			id, err := decodeID(pair[1])
			if err != nil {
				return nil, fmt.Errorf("adblock_rules record %d pair %d: %w", i, j, err)
			}
			edges = append(edges, id)
		}
	}
	return edges, nil
}

// DownstreamRequests returns every request causally downstream of edgeID.
func (c *Client) DownstreamRequests(ctx context.Context, graph, edgeID string) ([]string, error) {
	out, err := c.run(ctx, graph, "downstream_requests", edgeID, "--requests")
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode downstream_requests response: %w", err)
	}

	ids := make([]string, 0, len(raw))
	for i, r := range raw {
		id, err := decodeID(r)
		if err != nil {
			return nil, fmt.Errorf("downstream_requests element %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RequestInfo returns the origin URL and source text of requestID. A nonzero
// engine exit means the request carries no script and yields ErrUnrelated.
func (c *Client) RequestInfo(ctx context.Context, graph, requestID string) (*RequestInfo, error) {
	out, err := c.run(ctx, graph, "request_id_info", requestID)
	if err != nil {
		// A child killed by cancellation also exits nonzero.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("request %s: %w", requestID, ctxErr)
		}
		var exitErr *toolexec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("request %s: %w", requestID, ErrUnrelated)
		}
		return nil, err
	}

	var info RequestInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("failed to decode request_id_info response for %s: %w", requestID, err)
	}
	return &info, nil
}

func (c *Client) run(ctx context.Context, graph string, args ...string) ([]byte, error) {
	scoped := make([]string, 0, len(args)+2)
	if c.tool.GraphFlag != "" {
		scoped = append(scoped, c.tool.GraphFlag, graph)
	} else {
		scoped = append(scoped, graph)
	}
	scoped = append(scoped, args...)

	ctxlog.FromContext(ctx).Debug("Querying graph.", "graph", graph, "query", args[0])
	name, argv := c.tool.Argv(scoped...)
	out, err := c.runner.Run(ctx, name, argv...)
	if err != nil {
		return nil, fmt.Errorf("query %s on %s: %w", args[0], graph, err)
	}
	return out, nil
}

// decodeID accepts an identifier encoded either as a JSON string or a JSON
// number and returns its string form.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid identifier %s: %w", raw, err)
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid identifier %s: %w", raw, err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", fmt.Errorf("invalid identifier %s: %w", raw, err)
	}
	return n.String(), nil
}
