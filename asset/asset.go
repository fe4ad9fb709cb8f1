// Package asset builds the content-addressed description of one asset
// folder.
package asset

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/assetpack/descriptor"
)

// IDFromFolder derives the asset id from the base name of its folder.
func IDFromFolder(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

type ContentEntry struct {
	RelativePath string // relative to the pack root, slash separated
	CID          string
	SourcePath   string // where the bytes are read from
}

type Asset struct {
	ID             string
	Descriptor     descriptor.AssetDescriptor
	ThumbnailCID   string
	EntryPointPath string
	Contents       []ContentEntry
	SourceDir      string

	index map[string]int
}

func (a *Asset) add(entry ContentEntry) bool {
	if a.index == nil {
		a.index = map[string]int{}
	}
	if _, ok := a.index[entry.RelativePath]; ok {
		return false
	}
	a.index[entry.RelativePath] = len(a.Contents)
	a.Contents = append(a.Contents, entry)
	return true
}

// Entry returns the content entry for a pack relative path.
func (a *Asset) Entry(relativePath string) (ContentEntry, bool) {
	i, ok := a.index[relativePath]
	if !ok {
		return ContentEntry{}, false
	}
	return a.Contents[i], true
}

// ContentMap returns the relative path to CID mapping of the asset.
func (a *Asset) ContentMap() map[string]string {
	contents := make(map[string]string, len(a.Contents))
	for _, entry := range a.Contents {
		contents[entry.RelativePath] = entry.CID
	}
	return contents
}

func (a *Asset) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", a.ID)
	e.Str("name", a.Descriptor.Name)
	e.Str("dir", a.SourceDir)
	e.Int("contents", len(a.Contents))
	if a.EntryPointPath != "" {
		e.Str("entry_point", a.EntryPointPath)
	}
}

// Document is the published form of an asset.
type Document struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Thumbnail  string            `json:"thumbnail"`
	URL        string            `json:"url"`
	Category   string            `json:"category"`
	Tags       []string          `json:"tags"`
	Variations []string          `json:"variations"`
	Contents   map[string]string `json:"contents"`
}

// Document renders the asset with its thumbnail served by contentServerURL.
func (a *Asset) Document(contentServerURL string) Document {
	return Document{
		ID:         a.ID,
		Name:       a.Descriptor.Name,
		Thumbnail:  contentServerURL + "/" + a.ThumbnailCID,
		URL:        a.EntryPointPath,
		Category:   a.Descriptor.Category,
		Tags:       a.Descriptor.Tags,
		Variations: []string{},
		Contents:   a.ContentMap(),
	}
}
