// Package descriptor loads the declaration files that give packs and
// assets their identity.
//
// Both files are JSON; comments and trailing commas are tolerated.
package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"
)

const (
	AssetFileName = "asset.json"
	PackFileName  = "info.json"
)

var (
	ErrNotFound  = errors.New("descriptor not found")
	ErrMalformed = errors.New("descriptor malformed")
)

type AssetDescriptor struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (d AssetDescriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: asset must have a name", ErrMalformed)
	}
	if d.Category == "" {
		return fmt.Errorf("%w: asset must have a category", ErrMalformed)
	}
	if len(d.Tags) == 0 {
		return fmt.Errorf("%w: asset must have at least 1 tag", ErrMalformed)
	}
	for i, tag := range d.Tags {
		if tag == "" {
			return fmt.Errorf("%w: tag %d is empty", ErrMalformed, i)
		}
	}
	return nil
}

func (d AssetDescriptor) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", d.Name)
	e.Str("category", d.Category)
	e.Strs("tags", d.Tags)
}

type PackDescriptor struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (d PackDescriptor) validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: pack must have an id", ErrMalformed)
	}
	// the id names the published files and the catalog route of the pack
	if d.ID == "." || d.ID == ".." || strings.ContainsAny(d.ID, `/\`) || filepath.Base(d.ID) != d.ID {
		return fmt.Errorf("%w: pack id %q must be a plain file name", ErrMalformed, d.ID)
	}
	if d.Title == "" {
		return fmt.Errorf("%w: pack must have a title", ErrMalformed)
	}
	return nil
}

func (d PackDescriptor) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", d.ID)
	e.Str("title", d.Title)
}

// LoadAsset reads the asset declaration inside dirPath.
func LoadAsset(dirPath string) (*AssetDescriptor, error) {
	d := &AssetDescriptor{}
	if err := load(filepath.Join(dirPath, AssetFileName), d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dirPath, AssetFileName), err)
	}
	return d, nil
}

// LoadPack reads the pack declaration inside dirPath.
func LoadPack(dirPath string) (*PackDescriptor, error) {
	d := &PackDescriptor{}
	if err := load(filepath.Join(dirPath, PackFileName), d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dirPath, PackFileName), err)
	}
	return d, nil
}

func load(path string, target any) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("could not read %s: %w", path, err)
	}

	stripped := jsonc.ToJSON(raw)
	if err := json.Unmarshal(stripped, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return nil
}
