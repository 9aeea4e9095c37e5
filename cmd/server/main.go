package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/portfolio-globe/backend/internal/config"
	"github.com/portfolio-globe/backend/internal/server"
	"github.com/portfolio-globe/backend/internal/util"
	"github.com/portfolio-globe/backend/pkg/logger"
	"github.com/portfolio-globe/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	flags := pflag.NewFlagSet("server", pflag.ExitOnError)
	config.Flags(flags)
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Log.Debug,
		JSON:  cfg.Log.JSON,
	})
	logger.Init(consoleLogger)

	server.Init(cfg)
}
