package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vk/sugarpipe/internal/ctxlog"
	"github.com/vk/sugarpipe/internal/query"
)

// ScriptExt is the extension of every extracted script file.
const ScriptExt = ".js"

// maxFileNameBytes is the longest file name most file systems accept.
const maxFileNameBytes = 255

// Index maps a generated script name to the URL the script was loaded from.
// One Index is created per run by the orchestrator.
type Index map[string]string

// Script is one extracted script.
type Script struct {
	Name      string
	SourceURL string
	Source    string
}

// Querier is the subset of the query engine protocol used during extraction.
type Querier interface {
	AdblockMatches(ctx context.Context, graph, filterList string) ([]string, error)
	DownstreamRequests(ctx context.Context, graph, edgeID string) ([]string, error)
	RequestInfo(ctx context.Context, graph, requestID string) (*query.RequestInfo, error)
}

// Extractor runs the query chain for graph files.
type Extractor struct {
	query      Querier
	outputDir  string
	filterList string
	newID      func() string
}

// New creates an Extractor writing scripts to outputDir.
func New(q Querier, outputDir, filterList string) *Extractor {
	return &Extractor{
		query:      q,
		outputDir:  outputDir,
		filterList: filterList,
		newID:      uuid.NewString,
	}
}

// ProcessGraph runs matched-edge query, downstream trace and source
// extraction for one graph file, recording every script in index.
func (e *Extractor) ProcessGraph(ctx context.Context, graph string, index Index) ([]Script, error) {
	ctx = ctxlog.With(ctx, "graph", filepath.Base(graph))
	logger := ctxlog.FromContext(ctx)

	edges, err := e.MatchedEdges(ctx, graph)
	if err != nil {
		return nil, err
	}
	logger.Info("Matched ad-block edges.", "edges", len(edges))

	requests, err := e.Downstream(ctx, graph, edges)
	if err != nil {
		return nil, err
	}
	logger.Info("Traced downstream requests.", "requests", len(requests))

	scripts, err := e.Extract(ctx, graph, requests, index)
	if err != nil {
		return nil, err
	}
	logger.Info("Extracted scripts.", "scripts", len(scripts), "skipped", len(requests)-len(scripts))
	return scripts, nil
}

// MatchedEdges returns the edges of graph that match the filter list.
func (e *Extractor) MatchedEdges(ctx context.Context, graph string) ([]string, error) {
	edges, err := e.query.AdblockMatches(ctx, graph, e.filterList)
	if err != nil {
		return nil, fmt.Errorf("matched-edge query failed: %w", err)
	}
	return edges, nil
}

// Downstream traces every edge and concatenates the resulting request ids in
// order. Duplicates are kept.
func (e *Extractor) Downstream(ctx context.Context, graph string, edges []string) ([]string, error) {
	var requests []string
	for _, edge := range edges {
		ids, err := e.query.DownstreamRequests(ctx, graph, edge)
		if err != nil {
			return nil, fmt.Errorf("downstream trace of edge %s failed: %w", edge, err)
		}
		ctxlog.FromContext(ctx).Debug("Traced edge.", "edge", edge, "requests", len(ids))
		requests = append(requests, ids...)
	}
	return requests, nil
}

// Extract resolves each request id and writes the scripts it finds. Requests
// the engine reports as unrelated to script content are skipped.
func (e *Extractor) Extract(ctx context.Context, graph string, requestIDs []string, index Index) ([]Script, error) {
	logger := ctxlog.FromContext(ctx)

	var scripts []Script
	for _, id := range requestIDs {
		info, err := e.query.RequestInfo(ctx, graph, id)
		if errors.Is(err, query.ErrUnrelated) {
			logger.Debug("Skipping request without script content.", "request", id)
			continue
		}
		if err != nil {
			return nil, err
		}

		script := Script{
			Name:      ScriptName(info.URL, e.newID()),
			SourceURL: info.URL,
			Source:    info.Source,
		}
		if err := e.write(script); err != nil {
			return nil, err
		}
		// A colliding name silently replaces the earlier entry, matching the file overwrite.
		index[script.Name] = script.SourceURL
		scripts = append(scripts, script)
		logger.Debug("Extracted script.", "request", id, "name", script.Name, "url", script.SourceURL)
	}
	return scripts, nil
}

// write persists the script and returns only once the data is on disk.
func (e *Extractor) write(s Script) error {
	path := filepath.Join(e.outputDir, s.Name+ScriptExt)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.WriteString(s.Source); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// ScriptName builds "<basename>-<suffix>" from the last path segment of
// sourceURL with the script extension removed. The basename is shortened so
// that the name plus ScriptExt fits in a single file name.
func ScriptName(sourceURL, suffix string) string {
	base := ""
	if u, err := url.Parse(sourceURL); err == nil {
		base = path.Base(u.Path)
	} else {
		base = path.Base(sourceURL)
	}
	base = strings.TrimSuffix(base, ScriptExt)
	base = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." || base == "/" || base == "_" {
		base = "script"
	}
	base = truncateBytes(base, maxFileNameBytes-len("-")-len(suffix)-len(ScriptExt))
	return base + "-" + suffix
}

// truncateBytes shortens s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
