// Command mcpshield pins MCP servers to verified artifacts, detects drift,
// and scans for supply-chain risk.
package main

import "github.com/mcpshield/mcpshield/internal/cli"

func main() {
	cli.Execute()
}
