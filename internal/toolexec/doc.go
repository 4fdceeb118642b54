// Package toolexec runs the external collaborators of the pipeline (crawl
// engine, query engine, rewrite engine) as structured subprocesses. Commands
// are always an executable plus an explicit argument list; nothing is ever
// interpolated into a shell string.
package toolexec
