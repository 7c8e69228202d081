package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gmsas95/glucotrack/internal/app"
	"github.com/gmsas95/glucotrack/internal/cli"
	"github.com/gmsas95/glucotrack/internal/config"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	flag.Usage = func() { cli.PrintHelp(os.Stderr) }
	flag.Parse()
	cli.Version = version

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "help", "--help", "-h":
		cli.PrintHelp(os.Stdout)
		return
	case "version", "--version", "-v":
		fmt.Printf("Glucotrack version %s\n", version)
		return
	}

	if err := config.LoadEnvFiles(); err != nil {
		log.Printf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if cmd == "serve" {
		os.Exit(serve(cfg))
	}

	logger := cliLogger()
	defer logger.Sync()

	env := &cli.Env{In: os.Stdin, Out: os.Stdout, Config: cfg, Styled: cli.IsTerminal(os.Stdout)}

	if cmd == "config" {
		exit(cli.HandleConfigCommand(env, args))
		return
	}

	application, err := app.New(cfg, logger, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	env.Tracker = application.Tracker
	env.Tracking = application.Tracking

	switch cmd {
	case "reminders", "r":
		err = cli.HandleRemindersCommand(env, args)
	case "notes":
		err = cli.HandleNotesCommand(context.Background(), env, args)
	case "passwd":
		err = cli.HandlePasswdCommand(context.Background(), env, args)
	case "status":
		cli.HandleStatusCommand(env)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		cli.PrintHelp(os.Stderr)
		err = cli.ErrUsage
	}
	application.Close()
	exit(err)
}

func serve(cfg *config.Config) int {
	logger, err := app.NewLogger(cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Glucotrack", zap.String("version", version))

	application, err := app.New(cfg, logger, version)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		return 1
	}
	if err := application.Watch(*configPath, *dataDir); err != nil {
		logger.Warn("Config hot reload disabled", zap.Error(err))
	}
	if err := application.RunServer(context.Background()); err != nil {
		logger.Error("Server error", zap.Error(err))
		return 1
	}
	return 0
}

// cliLogger only reports warnings so it does not clutter command output
func cliLogger() *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func exit(err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, cli.ErrUsage) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
