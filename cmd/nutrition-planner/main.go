package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"nutrition-planner/internal/app"
	"nutrition-planner/internal/auth"
	"nutrition-planner/internal/config"
	"nutrition-planner/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx := context.Background()

	switch os.Args[1] {
	case "serve":
		application := mustApp(cfg)
		defer application.Close()
		if err := application.Serve(ctx); err != nil {
			logging.Fatal().Err(err).Msg("server failed")
		}
	case "train":
		application := mustApp(cfg)
		defer application.Close()
		m, err := application.Train(ctx)
		if err != nil {
			logging.Fatal().Err(err).Msg("training failed")
		}
		fmt.Printf("Published model version %d (run %s, accuracy %.3f).\n", m.Version, m.RunID, m.Accuracy)
	case "runs-cleanup":
		cleanupCmd := flag.NewFlagSet("runs-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep training runs for the last N days")
		cleanupCmd.Parse(os.Args[2:])

		application := mustApp(cfg)
		defer application.Close()
		affected, err := application.CleanupRuns(ctx, *days)
		if err != nil {
			logging.Fatal().Err(err).Msg("cleanup failed")
		}
		fmt.Printf("Successfully removed %d old training runs.\n", affected)
	case "admin-token":
		tokenCmd := flag.NewFlagSet("admin-token", flag.ExitOnError)
		ttl := tokenCmd.Duration("ttl", cfg.Admin.TokenTTL, "Token lifetime")
		tokenCmd.Parse(os.Args[2:])

		token, err := auth.MintAdminToken(cfg.Admin.JWTSecret, *ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to mint token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func mustApp(cfg *config.Config) *app.App {
	application, err := app.New(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize application")
	}
	return application
}

func printUsage() {
	fmt.Println("Usage: nutrition-planner <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve           Load or train the model and serve HTTP")
	fmt.Println("  train           Run one training pass and publish the artifacts")
	fmt.Println("  runs-cleanup    Remove old training run records (-days N)")
	fmt.Println("  admin-token     Mint a bearer token for the admin routes (-ttl D)")
}
