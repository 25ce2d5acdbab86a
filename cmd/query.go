// Copyright © 2024 The pikelsp authors

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"

	"github.com/piketools/pikelsp/bridge"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Interactive console for the compiler wire protocol",
		Long: `Open an interactive console speaking the bridge's wire protocol to a
live Pike analyze-server subprocess. Each input line is a method name
optionally followed by a JSON params object:

  > get_version
  > parse {"code": "int x = 42;", "filename": "test.pike"}
  > resolve_stdlib {"module": "Stdio"}
  > get_cache_stats
  > set_debug {"enabled": true}

Responses are pretty-printed JSON. Useful for debugging the
analyze-server without an editor attached.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			b := bridge.New(bridgeConfig())
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := b.Start(ctx)
			cancel()
			if err != nil {
				return err
			}
			defer b.Stop(context.Background()) //nolint:errcheck // best-effort shutdown

			return runConsole(b)
		},
	}

	rootCmd.AddCommand(cmd)
}

// runConsole reads method lines until EOF.
func runConsole(b *bridge.Bridge) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "pike> ",
		HistoryFile:       historyPath(),
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	for {
		line, err := rl.ReadLine()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		method, params, perr := splitQuery(line)
		if perr != nil {
			fmt.Fprintln(os.Stderr, perr)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		raw, err := b.RawCall(ctx, method, params)
		cancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		var pretty bytes.Buffer
		if json.Indent(&pretty, raw, "", "  ") == nil {
			fmt.Println(pretty.String())
		} else {
			fmt.Println(string(raw))
		}
	}
}

// splitQuery splits "method {json}" into its parts. Missing params
// default to an empty object.
func splitQuery(line string) (string, any, error) {
	method, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	params := map[string]any{}
	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &params); err != nil {
			return "", nil, fmt.Errorf("params must be a JSON object: %w", err)
		}
	}
	return method, params, nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pikelsp_history")
}
