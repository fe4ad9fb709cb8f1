package descriptor

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/assetpack/fileutils"
)

var csvColumns = []string{"folder", "name", "category", "tags"}

// WriteAsset writes d as the asset declaration of dirPath.
func WriteAsset(dirPath string, d AssetDescriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return fileutils.WriteFileAtomic(filepath.Join(dirPath, AssetFileName), raw)
}

// ImportCSV writes one asset declaration per CSV record into the matching
// folder of packDir. The header must name at least the folder, name,
// category and tags columns; tags are comma separated. With dryRun the
// records are validated but nothing is written.
func ImportCSV(r io.Reader, packDir string, dryRun bool, logger zerolog.Logger) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: empty csv", ErrMalformed)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	index := map[string]int{}
	for i, column := range header {
		index[strings.ToLower(strings.TrimSpace(column))] = i
	}
	for _, column := range csvColumns {
		if _, ok := index[column]; !ok {
			return 0, fmt.Errorf("%w: missing column %q", ErrMalformed, column)
		}
	}

	var written int
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return written, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if isBlank(record) {
			continue
		}

		folder := record[index["folder"]]
		d := AssetDescriptor{
			Name:     record[index["name"]],
			Category: record[index["category"]],
			Tags:     splitTags(record[index["tags"]]),
		}

		dirPath := filepath.Join(packDir, folder)
		if folder == "" {
			return written, fmt.Errorf("%w: line %d has no folder", ErrMalformed, line)
		}
		if dryRun {
			if err := d.validate(); err != nil {
				return written, fmt.Errorf("line %d: %w", line, err)
			}
			logger.Info().Str("path", filepath.Join(dirPath, AssetFileName)).Object("asset", d).Msg("would write asset descriptor")
			written++
			continue
		}
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			return written, err
		}
		if err := WriteAsset(dirPath, d); err != nil {
			return written, fmt.Errorf("line %d: %w", line, err)
		}
		logger.Info().Str("path", filepath.Join(dirPath, AssetFileName)).Object("asset", d).Msg("wrote asset descriptor")
		written++
	}

	return written, nil
}

func splitTags(raw string) []string {
	tags := []string{}
	for _, tag := range strings.Split(raw, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
