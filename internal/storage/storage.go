package storage

import (
	"context"
	"time"
)

// CachedSnapshot is one serialized tariff snapshot, keyed by the
// acquisition key's cache key. The payload is the JSON-encoded
// snapshot; storage never interprets it.
type CachedSnapshot struct {
	Key       string    `json:"key" gorm:"primaryKey;column:key"`
	Payload   []byte    `json:"payload" gorm:"column:payload"`
	FetchedAt time.Time `json:"fetched_at" gorm:"column:fetched_at"`
}

// Setting is a single persisted runtime setting.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// ScheduledJob records the last run of a named background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}

// Store is the cache-store contract: exactly one snapshot per key with
// last-write-wins replacement. Lookups return (nil, nil) on a miss so
// callers can tell "absent" from "broken".
type Store interface {
	GetSnapshot(ctx context.Context, key string) (*CachedSnapshot, error)
	PutSnapshot(ctx context.Context, snap CachedSnapshot) error
	ClearSnapshot(ctx context.Context, key string) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error

	Ping(ctx context.Context) error
	Close() error
}

// Locker is implemented by backends that can take cross-instance
// locks. Schedulers use it to keep multiple replicas from refreshing
// the same tariff at once; single-instance backends simply don't
// implement it.
type Locker interface {
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
}

// LockKey hashes a cache key into an advisory-lock key (FNV-1a).
func LockKey(cacheKey string) int64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(cacheKey); i++ {
		h ^= uint64(cacheKey[i])
		h *= 1099511628211
	}
	return int64(h)
}
