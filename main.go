// Copyright © 2024 The pikelsp authors

package main

import (
	"github.com/tliron/commonlog"

	"github.com/piketools/pikelsp/cmd"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	// Baseline verbosity; cmd raises it once flags are parsed.
	commonlog.Configure(1, nil)
	cmd.Execute()
}
