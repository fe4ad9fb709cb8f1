package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/stupid-simple/assetpack/config"
)

// Set at build time.
var version = "dev"

func newLogger(levelName string) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, NoColor: false, TimeFormat: time.RFC3339}
	consoleWriter.TimeFormat = "[" + time.RFC3339 + "]"
	consoleWriter.PartsOrder = []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.CallerFieldName,
		zerolog.MessageFieldName,
	}

	logger := zerolog.New(consoleWriter).
		With().Timestamp().Logger()

	level := zerolog.InfoLevel
	if levelName != "" {
		parsed, err := zerolog.ParseLevel(levelName)
		if err != nil {
			logger.Warn().Err(err).Msg("could not parse environment variable LOG_LEVEL")
			return logger.Level(level)
		}
		level = parsed
	}

	return logger.Level(level)
}

func main() {
	args := Command{}
	cli := kong.Parse(&args,
		kong.Name("assetpack"),
		kong.Description("Bundle 3D asset packs into content addressed storage."),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignals(cancel)

	env, err := config.ParseEnv()
	if err != nil {
		fallback := newLogger("")
		fallback.Error().Err(err).Msg("invalid environment")
		cli.Exit(1)
		return
	}

	logger := newLogger(env.LogLevel)
	switch cli.Command() {
	case "version":
		fmt.Println(version)
	case "bundle":
		err := bundleCommand(ctx, args, env, logger)
		if err != nil {
			logger.Error().Err(err).Msg("bundle error")
			cli.Exit(1)
		}
	case "import-csv":
		err := importCSVCommand(args, logger)
		if err != nil {
			logger.Error().Err(err).Msg("import error")
			cli.Exit(1)
		}
	case "daemon":
		err := daemonCommand(ctx, args, env, logger)
		if err != nil {
			logger.Error().Err(err).Msg("daemon error")
			cli.Exit(1)
		}
	default:
		panic(cli.Command())
	}
}

func setupSignals(onSignal func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		onSignal()
	}()
}
