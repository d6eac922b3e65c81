// Package mcp implements the Model Context Protocol server for litrev.
//
// Tools cover the Zotero library, literature search (PubMed, Semantic
// Scholar, ERIC, publisher landing pages), notes kept in Google Drive, the
// research workflow log and the argument map. Every tool answers with a JSON
// object carrying "success"; failures are tool-level errors with a code, a
// message and, when one is known, a suggestion for the agent.
package mcp
