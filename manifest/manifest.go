// Package manifest writes the catalog of published packs and the routing
// file of the static host serving it.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stupid-simple/assetpack/fileutils"
	"github.com/stupid-simple/assetpack/pack"
)

const (
	IndexFileName   = "index.json"
	RoutingFileName = "now.json"
)

var ErrWrite = errors.New("could not write catalog")

type Entry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	URL       string `json:"url"`
}

type Index struct {
	Packs []Entry `json:"packs"`
}

type Route struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

type Routing struct {
	Version int     `json:"version"`
	Routes  []Route `json:"routes"`
}

// DefaultRouting serves the index at / and every pack document at /<id>.
var DefaultRouting = Routing{
	Version: 2,
	Routes: []Route{
		{Src: "/", Dest: "/" + IndexFileName},
		{Src: "/(.*)", Dest: "/$1.json"},
	},
}

// NewIndex builds the catalog entries of packs, in order. Packs without a
// thumbnail get an empty one.
func NewIndex(publicBaseURL string, packs []*pack.Pack) Index {
	base := strings.TrimSuffix(publicBaseURL, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	index := Index{Packs: make([]Entry, 0, len(packs))}
	for _, p := range packs {
		entry := Entry{
			ID:    p.ID,
			Title: p.Title,
			URL:   "/" + p.ID + ".json",
		}
		// the <id>.png copy is only written for an uploaded thumbnail
		if p.ThumbnailCID != "" {
			entry.Thumbnail = base + "/" + p.ID + ".png"
		}
		index.Packs = append(index.Packs, entry)
	}
	return index
}

// Write writes the index and routing files to outDir. Both files are
// staged next to their destination before either is moved into place, and
// a failed move restores whatever outDir held before.
func Write(outDir string, publicBaseURL string, packs []*pack.Pack) error {
	files := []struct {
		name string
		v    any
	}{
		{IndexFileName, pack.NewEnvelope(NewIndex(publicBaseURL, packs))},
		{RoutingFileName, DefaultRouting},
	}

	staged := make([]string, 0, len(files))
	backups := make([]string, 0, len(files))
	cleanup := func() {
		for _, path := range append(staged, backups...) {
			if path != "" {
				_ = os.Remove(path)
			}
		}
	}

	for _, f := range files {
		dest := filepath.Join(outDir, f.name)
		data, err := json.MarshalIndent(f.v, "", "  ")
		if err != nil {
			cleanup()
			return fmt.Errorf("%w: %s: %w", ErrWrite, f.name, err)
		}
		path, err := fileutils.StageFile(dest, data)
		if err != nil {
			cleanup()
			return fmt.Errorf("%w: %s: %w", ErrWrite, f.name, err)
		}
		staged = append(staged, path)

		backup, err := stageBackup(dest)
		if err != nil {
			cleanup()
			return fmt.Errorf("%w: %s: %w", ErrWrite, f.name, err)
		}
		backups = append(backups, backup)
	}

	for i, f := range files {
		if err := os.Rename(staged[i], filepath.Join(outDir, f.name)); err != nil {
			for j := range i {
				restore(filepath.Join(outDir, files[j].name), backups[j])
			}
			cleanup()
			return fmt.Errorf("%w: %s: %w", ErrWrite, f.name, err)
		}
	}

	for _, backup := range backups {
		if backup != "" {
			_ = os.Remove(backup)
		}
	}
	return nil
}

// stageBackup copies the regular file at dest into a staged file.
// It returns "" when there is nothing to restore.
func stageBackup(dest string) (string, error) {
	info, err := os.Lstat(dest)
	if err != nil || !info.Mode().IsRegular() {
		return "", nil
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		return "", err
	}
	return fileutils.StageFile(dest, data)
}

func restore(dest string, backup string) {
	if backup == "" {
		_ = os.Remove(dest)
		return
	}
	_ = os.Rename(backup, dest)
}
