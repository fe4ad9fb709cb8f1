package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/assetpack/descriptor"
)

func importCSVCommand(args Command, logger zerolog.Logger) error {
	logger = logger.With().Str("pack", args.ImportCsv.Pack).Logger()
	if args.ImportCsv.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	f, err := os.Open(args.ImportCsv.Src)
	if err != nil {
		return fmt.Errorf("could not open csv: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	startTime := time.Now()
	count, err := descriptor.ImportCSV(f, args.ImportCsv.Pack, args.ImportCsv.DryRun, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Int("assets", count).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("done importing asset descriptors")
	return nil
}
