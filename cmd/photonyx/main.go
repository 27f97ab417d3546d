// Command photonyx runs the server with the modules found in the configured
// modules directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/DimaCrafter/photonyx/app"
	"github.com/DimaCrafter/photonyx/config"
)

func main() {
	configFile := flag.String("config", config.DefaultFile, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "photonyx: %v\n", err)
		os.Exit(1)
	}

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "photonyx: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		application.Logger().Fatal("server failed", zap.Error(err))
	}
}
