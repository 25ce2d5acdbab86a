// Copyright © 2024 The pikelsp authors

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/piketools/pikelsp/bridge"
	"github.com/piketools/pikelsp/lsp"
)

func init() {
	var (
		stdio bool
		port  int
	)

	cmd := &cobra.Command{
		Use:   "lsp [flags]",
		Short: "Start the Pike Language Server Protocol server",
		Long: `Start an LSP server for Pike source files.

The language server provides real-time IDE features including
diagnostics, hover documentation, go-to-definition, find references,
completion, and document symbols. All analysis is performed by the Pike
compiler running as a subprocess; pikelsp itself never parses Pike.

Transport modes:
  --stdio      Use stdin/stdout for LSP communication (default)
  --port N     Listen for an LSP client on TCP port N

Examples:
  pikelsp lsp                          Start with stdio transport
  pikelsp lsp --port 7998              Start with TCP on port 7998
  pikelsp lsp --pike /opt/pike/bin/pike

Editor configuration (VS Code):
  Install a generic LSP client extension and configure it to run
  "pikelsp lsp" for .pike and .pmod files.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			b := bridge.New(bridgeConfig())
			srv := lsp.New(lsp.WithAnalyzer(b))

			if !stdio && port > 0 {
				addr := fmt.Sprintf("localhost:%d", port)
				log.Printf("Pike LSP server listening on %s", addr)
				if err := srv.RunTCP(addr); err != nil {
					fmt.Fprintf(os.Stderr, "lsp server error: %v\n", err)
					os.Exit(1)
				}
			} else {
				if err := srv.RunStdio(); err != nil {
					fmt.Fprintf(os.Stderr, "lsp server error: %v\n", err)
					os.Exit(1)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&stdio, "stdio", false,
		"Use stdin/stdout for LSP communication (default behavior)")
	cmd.Flags().IntVar(&port, "port", 0,
		"TCP port for LSP server (use instead of --stdio)")

	rootCmd.AddCommand(cmd)
}
