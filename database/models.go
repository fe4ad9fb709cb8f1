package database

import (
	"time"
)

type Bucket struct {
	Name      string `gorm:"primaryKey"`
	CreatedAt time.Time
}

// StoredObject is an object known to be present in a bucket.
type StoredObject struct {
	BucketName  string `gorm:"primaryKey"`
	CID         string `gorm:"primaryKey"`
	Bucket      Bucket `gorm:"foreignKey:BucketName"`
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// FileFingerprint caches the CID of a local file.
type FileFingerprint struct {
	Path      string `gorm:"primaryKey"`
	Algorithm string `gorm:"primaryKey"`
	Size      int64
	ModTime   int64 // unix nanoseconds
	Hash      int64 // xxhash of the contents
	CID       string
	UpdatedAt time.Time
}

// Models lists every table of the ledger, for migrations.
func Models() []any {
	return []any{&Bucket{}, &StoredObject{}, &FileFingerprint{}}
}
