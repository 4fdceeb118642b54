// Package extract walks one graph file from ad-block matches to script
// sources: it finds the matched edges, traces the requests they triggered and
// writes the source of every script request into the output directory.
//
// Writes are completed (synced and closed) before each call returns, so once
// ProcessGraph returns the output directory reflects every extracted script.
package extract
