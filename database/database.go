package database

import (
	"context"
	"iter"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stupid-simple/assetpack/upload"
)

const iterateBatchSize = 50

type Database struct {
	Lock   sync.Mutex
	Cli    *gorm.DB
	Logger zerolog.Logger
	DryRun bool
}

func (d *Database) GetBucket(ctx context.Context, name string) (*BucketLedger, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	d.Logger.Debug().Str("bucket", name).Msg("get bucket")

	bucket := &Bucket{}
	err := d.Cli.WithContext(ctx).Where(Bucket{Name: name}).FirstOrCreate(bucket).Error
	if err != nil {
		return nil, err
	}

	return &BucketLedger{db: d, record: bucket, logger: d.Logger.With().Str("bucket", name).Logger()}, nil
}

func (d *Database) IterBuckets(ctx context.Context) (iter.Seq[*BucketLedger], error) {
	return func(yield func(*BucketLedger) bool) {
		offset := 0
		for {
			buckets := []Bucket{}
			d.Lock.Lock()
			err := d.Cli.WithContext(ctx).Order("name").Limit(iterateBatchSize).Offset(offset).Find(&buckets).Error
			d.Lock.Unlock()
			if err != nil {
				d.Logger.Error().Err(err).Msg("error fetching buckets from database")
				return
			}
			for i := range buckets {
				if ctx.Err() != nil {
					return
				}
				b := &BucketLedger{db: d, record: &buckets[i], logger: d.Logger.With().Str("bucket", buckets[i].Name).Logger()}
				if !yield(b) {
					return
				}
			}
			if len(buckets) < iterateBatchSize {
				return
			}
			offset += iterateBatchSize
		}
	}, nil
}

// Has implements upload.Ledger.
func (d *Database) Has(ctx context.Context, bucket string, cids []string) (map[string]bool, error) {
	b, err := d.GetBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return b.Has(ctx, cids)
}

// Register implements upload.Ledger.
func (d *Database) Register(ctx context.Context, bucket string, objects []upload.Object) error {
	b, err := d.GetBucket(ctx, bucket)
	if err != nil {
		return err
	}
	_, err = b.Register(ctx, objects)
	return err
}
