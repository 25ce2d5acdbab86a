// Copyright © 2024 The pikelsp authors

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/piketools/pikelsp/bridge"
)

// serverVersion is the pikelsp release version.
const serverVersion = "0.1.0"

func init() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show pikelsp and Pike versions",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("pikelsp %s\n", serverVersion)

			b := bridge.New(bridgeConfig())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if version, err := b.CheckExecutable(ctx); err == nil {
				fmt.Println(version)
			} else {
				fmt.Printf("pike: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(cmd)
}
