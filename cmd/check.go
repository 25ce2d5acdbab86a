// Copyright © 2024 The pikelsp authors

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/piketools/pikelsp/bridge"
)

func init() {
	var probe bool

	cmd := &cobra.Command{
		Use:   "check [files...]",
		Short: "Parse Pike files and report diagnostics",
		Long: `Parse one or more Pike source files through the compiler backend and
print their diagnostics. Files are sent in a single batch; a file that
fails to compile does not stop the rest of the batch.

With --probe, only verify that the configured Pike executable is
runnable and print its version.`,
		RunE: func(_ *cobra.Command, args []string) error {
			b := bridge.New(bridgeConfig())
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			version, err := b.CheckExecutable(ctx)
			if err != nil {
				return err
			}
			if probe {
				fmt.Println(version)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("no files given (use --probe to only check the executable)")
			}

			if err := b.Start(ctx); err != nil {
				return err
			}
			defer b.Stop(context.Background()) //nolint:errcheck // best-effort shutdown

			files := make([]bridge.FileSource, 0, len(args))
			for _, name := range args {
				code, err := os.ReadFile(name)
				if err != nil {
					return err
				}
				files = append(files, bridge.FileSource{Code: string(code), Filename: name})
			}

			batch, err := b.BatchParse(ctx, files)
			if err != nil {
				return err
			}

			problems := 0
			for _, res := range batch.Results {
				if res.Err != nil {
					problems++
					fmt.Printf("%s: %s\n", res.Filename, res.Err.Message)
					continue
				}
				for _, d := range res.Diagnostics {
					problems++
					fmt.Printf("%s:%s: %s: %s\n", res.Filename, d.Range.Start, d.Severity, d.Message)
				}
			}
			if problems > 0 {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false,
		"Only verify the Pike executable and print its version")

	rootCmd.AddCommand(cmd)
}
