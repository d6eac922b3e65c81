// Package cli implements the command-line interface for litrev.
//
// Besides starting the MCP server, the commands print project data to the
// terminal: saved insights, the project context, the argument map and the
// pending manual actions. Markdown is styled with glamour and long output
// opens in a pager with incremental search.
package cli
