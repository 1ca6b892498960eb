// Command veilgate is a security-enforcing JSON-RPC 2.0 proxy for MCP
// traffic: it sanitizes messages, substitutes detected credentials with
// vault placeholders, and enforces per-connection rate limits between a
// client and a downstream MCP server.
package main

import "github.com/veilgate/veilgate/cmd/veilgate/cmd"

func main() {
	cmd.Execute()
}
