package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spantoken/bridge-hub/pkg/app"
	"github.com/spantoken/bridge-hub/pkg/app/hub"
	"github.com/spantoken/bridge-hub/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	matrixPath := flag.String("matrix", "", "Optional routing matrix file overriding the config-derived matrix")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = hub.NewServer(cfg, *matrixPath)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Bridge hub exited with error: %v\n", err)
		os.Exit(1)
	}
}
