// Command litrev is a literature review assistant: an MCP server for Zotero,
// literature search, research notes and an argument map, plus a terminal
// viewer for the same data.
package main

import (
	"fmt"
	"os"

	"github.com/ka2n/litrev/cli"
	"github.com/morikuni/failure/v2"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version, cli.Commit, cli.Date = version, commit, date

	err := cli.Run()
	if err == nil {
		return
	}
	msg := err.Error()
	if fmsg := failure.MessageOf(err); fmsg != "" {
		msg = fmsg.String()
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	if os.Getenv("LITREV_DEBUG") != "" {
		if code := failure.CodeOf(err); code != nil {
			fmt.Fprintf(os.Stderr, "code: %v\n", code)
		}
		fmt.Fprintf(os.Stderr, "%+v\n", err)
	}
	os.Exit(1)
}
