package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stupid-simple/assetpack/cid"
	"github.com/stupid-simple/assetpack/fileutils"
)

// CIDCache identifies files through their cached fingerprint, hashing
// only files that changed since they were last seen.
type CIDCache struct {
	db        *Database
	addresser *cid.Addresser
	logger    zerolog.Logger
}

func NewCIDCache(db *Database, addresser *cid.Addresser) *CIDCache {
	return &CIDCache{
		db:        db,
		addresser: addresser,
		logger:    db.Logger.With().Str("cache", string(addresser.Algorithm())).Logger(),
	}
}

// IdentifyFile implements asset.FileIdentifier.
func (c *CIDCache) IdentifyFile(ctx context.Context, path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", path)
	}

	record, err := c.lookup(ctx, absPath)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", absPath).Msg("could not read cached fingerprint")
	}

	if record != nil && record.Size == info.Size() && record.ModTime == info.ModTime().UnixNano() {
		return record.CID, nil
	}

	hash, err := fileutils.FingerprintFile(absPath)
	if err != nil {
		return "", err
	}
	if record != nil && record.Size == info.Size() && uint64(record.Hash) == hash {
		c.logger.Debug().Str("path", absPath).Msg("file touched but not modified")
		c.save(ctx, &FileFingerprint{
			Path:      absPath,
			Algorithm: record.Algorithm,
			Size:      record.Size,
			ModTime:   info.ModTime().UnixNano(),
			Hash:      record.Hash,
			CID:       record.CID,
		})
		return record.CID, nil
	}

	id, err := c.addresser.IdentifyFile(absPath)
	if err != nil {
		return "", err
	}
	c.save(ctx, &FileFingerprint{
		Path:      absPath,
		Algorithm: string(c.addresser.Algorithm()),
		Size:      info.Size(),
		ModTime:   info.ModTime().UnixNano(),
		Hash:      int64(hash),
		CID:       id,
	})
	return id, nil
}

func (c *CIDCache) lookup(ctx context.Context, absPath string) (*FileFingerprint, error) {
	c.db.Lock.Lock()
	defer c.db.Lock.Unlock()

	record := &FileFingerprint{}
	err := c.db.Cli.WithContext(ctx).
		Where("path = ? AND algorithm = ?", absPath, string(c.addresser.Algorithm())).
		First(record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (c *CIDCache) save(ctx context.Context, record *FileFingerprint) {
	if c.db.DryRun {
		return
	}

	c.db.Lock.Lock()
	defer c.db.Lock.Unlock()

	err := c.db.Cli.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error
	if err != nil {
		c.logger.Warn().Err(err).Str("path", record.Path).Msg("could not cache fingerprint")
	}
}
