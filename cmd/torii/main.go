package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdobrica/Torii/common/version"
	"github.com/bdobrica/Torii/internal/torii/app"
	"github.com/bdobrica/Torii/internal/torii/config"
)

func main() {
	fmt.Printf("Torii Approval Gateway\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	configPath := flag.String("config", os.Getenv("TORII_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	torii, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Torii: %v\n", err)
		os.Exit(1)
	}
	defer torii.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := torii.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Torii: %v\n", err)
		os.Exit(1)
	}
}
