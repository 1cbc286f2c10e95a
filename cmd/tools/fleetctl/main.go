package main

import (
	"fmt"
	"os"

	"github.com/shardfleet/shardfleet/internal/cli"
)

var Version = "dev" // Injected via ldflags during build

func main() {
	if err := cli.RootCmd(Version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
