package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/qwmc/qwmc-web/internal/app"
	"github.com/qwmc/qwmc-web/internal/config"
	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run loads .env and flags, then migrates or serves.
func run(ctx context.Context, args []string) error {
	if errEnv := godotenv.Load(); errEnv != nil && !errors.Is(errEnv, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", errEnv)
	}

	flags := flag.NewFlagSet("qwmc", flag.ContinueOnError)
	cfgPath := flags.String("config", "", "config file path (or env CONFIG_PATH)")
	addr := flags.String("addr", "", "listen address, overrides server.addr and LISTEN_ADDR")
	migrateOnly := flags.Bool("migrate", false, "run database migrations and exit")
	if errParse := flags.Parse(args); errParse != nil {
		return errParse
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}
	if listen := strings.TrimSpace(*addr); listen != "" {
		if errValidate := validateAddr(listen); errValidate != nil {
			return errValidate
		}
		appCfg.ListenAddr = listen
	}

	if *migrateOnly {
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	}
	return app.RunServer(ctx, appCfg)
}

func validateAddr(addr string) error {
	if _, _, errSplit := net.SplitHostPort(addr); errSplit != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, errSplit)
	}
	return nil
}
