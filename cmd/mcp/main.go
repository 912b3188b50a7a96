// EscrowPi MCP server - fee calculators and order tools for LLM agents
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/escrowpi/escrowpi/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:      os.Getenv("ESCROWPI_API_URL"),
		AccessToken: os.Getenv("PI_ACCESS_TOKEN"),
		Username:    os.Getenv("ESCROWPI_USERNAME"),
	}

	// Without an API the server still offers the calculators.
	if cfg.APIURL != "" && cfg.AccessToken == "" && cfg.Username == "" {
		fmt.Fprintln(os.Stderr, "PI_ACCESS_TOKEN or ESCROWPI_USERNAME is required with ESCROWPI_API_URL")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
