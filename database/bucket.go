package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stupid-simple/assetpack/upload"
)

type BucketLedger struct {
	db     *Database
	record *Bucket
	logger zerolog.Logger
}

func (b *BucketLedger) Name() string {
	return b.record.Name
}

// Has returns the subset of cids recorded as stored in the bucket.
func (b *BucketLedger) Has(ctx context.Context, cids []string) (map[string]bool, error) {
	known := make(map[string]bool, len(cids))

	throttledLogger := b.logger.Sample(&zerolog.BurstSampler{
		Burst:  1,
		Period: 1 * time.Second,
	})
	for start := 0; start < len(cids); start += iterateBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+iterateBatchSize, len(cids))
		throttledLogger.Debug().Int("checked", start).Int("total", len(cids)).Msg("looking up stored objects")

		found := []string{}
		b.db.Lock.Lock()
		err := b.db.Cli.WithContext(ctx).
			Model(&StoredObject{}).
			Where("bucket_name = ? AND cid IN ?", b.record.Name, cids[start:end]).
			Pluck("cid", &found).Error
		b.db.Lock.Unlock()
		if err != nil {
			b.logger.Error().Err(err).Msg("could not read stored object records")
			return nil, err
		}
		for _, id := range found {
			known[id] = true
		}
	}

	b.logger.Debug().Int("known", len(known)).Int("checked", len(cids)).Msg("done looking up stored objects")
	return known, nil
}

// Register records objects as stored in the bucket. Already recorded
// objects are left untouched.
func (b *BucketLedger) Register(ctx context.Context, objects []upload.Object) (int, error) {
	var count int
	defer func() {
		if ctx.Err() != nil {
			b.logger.Info().Msg("cancelled recording stored objects")
		} else {
			b.logger.Debug().Int("recorded", count).Msg("done recording stored objects")
		}
	}()

	for start := 0; start < len(objects); start += iterateBatchSize {
		if ctx.Err() != nil {
			break
		}
		batch := objects[start:min(start+iterateBatchSize, len(objects))]

		b.db.Lock.Lock()
		err := b.db.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, o := range batch {
				if b.db.DryRun {
					count++
					continue
				}
				err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&StoredObject{
					BucketName:  b.record.Name,
					CID:         o.CID,
					ContentType: o.ContentType,
					Size:        o.Size,
				}).Error
				if err != nil {
					return err
				}
				count++
			}
			return nil
		})
		b.db.Lock.Unlock()
		if err != nil {
			return count, err
		}
	}

	return count, nil
}

// Stats returns the number of recorded objects and their total size.
func (b *BucketLedger) Stats(ctx context.Context) (objects int64, size int64, err error) {
	var result struct {
		Objects int64
		Size    int64
	}
	b.db.Lock.Lock()
	defer b.db.Lock.Unlock()
	err = b.db.Cli.WithContext(ctx).
		Model(&StoredObject{}).
		Select("COUNT(*) AS objects, COALESCE(SUM(size), 0) AS size").
		Where("bucket_name = ?", b.record.Name).
		Scan(&result).Error
	return result.Objects, result.Size, err
}
