package main

import (
	"github.com/Paintersrp/cycler/internal/cli"
	"github.com/Paintersrp/cycler/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
