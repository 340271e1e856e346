package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/observe"
)

// entryRow is one stored entry.
type entryRow struct {
	CacheKey        string `gorm:"column:cache_key;primaryKey"`
	Kind            uint8  `gorm:"column:kind;not null"`
	Value           []byte `gorm:"column:value"`
	StaleNanos      int64  `gorm:"column:stale_nanos;not null"`
	RevalidateNanos int64  `gorm:"column:revalidate_nanos;not null"`
	ExpireNanos     int64  `gorm:"column:expire_nanos;not null"`
	CreatedNano     int64  `gorm:"column:created_nano;not null;index"`
	Invalidation    uint8  `gorm:"column:invalidation;not null;default:0"`
}

func (entryRow) TableName() string { return "rendercache_entries" }

// tagRow links an entry to one tag.
type tagRow struct {
	CacheKey string `gorm:"column:cache_key;primaryKey"`
	Tag      string `gorm:"column:tag;primaryKey;index"`
}

func (tagRow) TableName() string { return "rendercache_tags" }

// pathRow links an entry to one route path.
type pathRow struct {
	CacheKey string `gorm:"column:cache_key;primaryKey"`
	Path     string `gorm:"column:path;primaryKey;index"`
}

func (pathRow) TableName() string { return "rendercache_paths" }

// SQLConfig configures a SQLHandler.
type SQLConfig struct {
	// DSN is the SQLite data source, e.g. "file:cache.db" or ":memory:".
	DSN string

	// LogLevel is the gorm log level: silent, error, warn or info.
	// Default: silent
	LogLevel string

	// SweepInterval purges expired rows periodically when positive.
	SweepInterval time.Duration

	Now    func() time.Time
	Logger observe.Logger
}

// SQLHandler is a cache.Handler persisting entries in SQLite via gorm.
//
// Contract:
//   - Concurrency: safe for concurrent use; writes run in transactions.
//   - Set replaces the entry row and its tag and path rows atomically.
//   - ExpirePaths marks lazily; immediate path expiry is applied by the
//     Store's own index.
type SQLHandler struct {
	db     *gorm.DB
	now    func() time.Time
	logger observe.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSQLHandler opens the database and migrates the schema.
func NewSQLHandler(cfg SQLConfig) (*SQLHandler, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, ErrMissingDSN
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("handlers: open %s: %w", cfg.DSN, err)
	}

	if isMemoryDSN(cfg.DSN) {
		// Each connection to :memory: is a separate database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewSQLHandlerFromDB(db, cfg)
}

// NewSQLHandlerFromDB wraps an open gorm connection and migrates the schema.
func NewSQLHandlerFromDB(db *gorm.DB, cfg SQLConfig) (*SQLHandler, error) {
	if err := db.AutoMigrate(&entryRow{}, &tagRow{}, &pathRow{}); err != nil {
		return nil, fmt.Errorf("handlers: migrate: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	h := &SQLHandler{
		db:     db,
		now:    cfg.Now,
		logger: cfg.Logger.With(observe.F("component", "handlers.sql")),
		stop:   make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go h.janitor(cfg.SweepInterval)
	}
	return h, nil
}

func gormLogLevel(s string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// Get returns the entry for key, or nil on a miss.
func (h *SQLHandler) Get(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	id := key.String()
	db := h.db.WithContext(ctx)

	var row entryRow
	err := db.Where("cache_key = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var tags []tagRow
	if err := db.Where("cache_key = ?", id).Order("tag").Find(&tags).Error; err != nil {
		return nil, err
	}
	var paths []pathRow
	if err := db.Where("cache_key = ?", id).Order("path").Find(&paths).Error; err != nil {
		return nil, err
	}

	e := &cache.Entry{
		Key:   key,
		Value: row.Value,
		Profile: cache.Profile{
			Stale:      time.Duration(row.StaleNanos),
			Revalidate: time.Duration(row.RevalidateNanos),
			Expire:     time.Duration(row.ExpireNanos),
		},
		CreatedAt:    time.Unix(0, row.CreatedNano),
		Kind:         cache.Kind(row.Kind),
		Invalidation: cache.Invalidation(row.Invalidation),
	}
	for _, t := range tags {
		e.Tags = append(e.Tags, cache.Tag(t.Tag))
	}
	for _, p := range paths {
		e.Paths = append(e.Paths, p.Path)
	}
	return e, nil
}

// Set upserts the entry and replaces its tag and path rows.
func (h *SQLHandler) Set(ctx context.Context, key cache.Key, entry *cache.Entry) error {
	id := key.String()
	row := entryRow{
		CacheKey:        id,
		Kind:            uint8(key.Kind()),
		Value:           entry.Value,
		StaleNanos:      int64(entry.Profile.Stale),
		RevalidateNanos: int64(entry.Profile.Revalidate),
		ExpireNanos:     int64(entry.Profile.Expire),
		CreatedNano:     entry.CreatedAt.UnixNano(),
		Invalidation:    uint8(entry.Invalidation),
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("cache_key = ?", id).Delete(&tagRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("cache_key = ?", id).Delete(&pathRow{}).Error; err != nil {
			return err
		}

		if len(entry.Tags) > 0 {
			tags := make([]tagRow, 0, len(entry.Tags))
			for _, t := range entry.Tags {
				tags = append(tags, tagRow{CacheKey: id, Tag: string(t)})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tags).Error; err != nil {
				return err
			}
		}
		if len(entry.Paths) > 0 {
			paths := make([]pathRow, 0, len(entry.Paths))
			for _, p := range entry.Paths {
				paths = append(paths, pathRow{CacheKey: id, Path: cache.NormalizePath(p)})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&paths).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the entry and its tag and path rows. Idempotent.
func (h *SQLHandler) Delete(ctx context.Context, key cache.Key) error {
	id := key.String()
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cache_key = ?", id).Delete(&tagRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("cache_key = ?", id).Delete(&pathRow{}).Error; err != nil {
			return err
		}
		return tx.Where("cache_key = ?", id).Delete(&entryRow{}).Error
	})
}

// ExpireTags marks every entry carrying one of tags.
func (h *SQLHandler) ExpireTags(ctx context.Context, tags []cache.Tag, mode cache.Mode) error {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, string(t))
	}

	db := h.db.WithContext(ctx)
	matched := db.Model(&tagRow{}).Select("cache_key").Where("tag IN ?", names)
	return h.mark(db, matched, markFor(mode))
}

// ExpirePaths lazily marks every entry rendered at a matching path.
func (h *SQLHandler) ExpirePaths(ctx context.Context, paths []string, g cache.Granularity) error {
	if len(paths) == 0 {
		return nil
	}

	var conds []string
	var args []any
	for _, p := range paths {
		p = cache.NormalizePath(p)
		switch {
		case g == cache.GranularityLayout && p == "/":
			conds, args = []string{"1 = 1"}, nil
		case g == cache.GranularityLayout:
			conds = append(conds, `(path = ? OR path LIKE ? ESCAPE '\')`)
			args = append(args, p, escapeLike(p)+"/%")
		default:
			conds = append(conds, "path = ?")
			args = append(args, p)
		}
		if len(args) == 0 {
			break
		}
	}

	db := h.db.WithContext(ctx)
	matched := db.Model(&pathRow{}).Select("cache_key").Where(strings.Join(conds, " OR "), args...)
	return h.mark(db, matched, cache.InvalidationLazy)
}

func (h *SQLHandler) mark(db *gorm.DB, matched *gorm.DB, mark cache.Invalidation) error {
	return db.Model(&entryRow{}).
		Where("cache_key IN (?)", matched).
		Update("invalidation", gorm.Expr("MAX(invalidation, ?)", uint8(mark))).Error
}

func markFor(m cache.Mode) cache.Invalidation {
	if m == cache.ModeImmediate {
		return cache.InvalidationImmediate
	}
	return cache.InvalidationLazy
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Purge deletes entries past their expire time and returns how many it removed.
func (h *SQLHandler) Purge(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("expire_nanos <> ? AND created_nano + expire_nanos < ?", int64(cache.Forever), now.UnixNano()).
			Delete(&entryRow{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		live := tx.Model(&entryRow{}).Select("cache_key")
		if err := tx.Where("cache_key NOT IN (?)", live).Delete(&tagRow{}).Error; err != nil {
			return err
		}
		return tx.Where("cache_key NOT IN (?)", live).Delete(&pathRow{}).Error
	})
	return removed, err
}

func (h *SQLHandler) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx := context.Background()
			n, err := h.Purge(ctx, h.now())
			if err != nil {
				h.logger.Warn(ctx, "purge failed", observe.F("error", err))
			} else if n > 0 {
				h.logger.Debug(ctx, "purged expired entries", observe.F("count", n))
			}
		case <-h.stop:
			return
		}
	}
}

// Ping checks the database connection.
func (h *SQLHandler) Ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Len returns the number of stored entries.
func (h *SQLHandler) Len(ctx context.Context) (int64, error) {
	var n int64
	err := h.db.WithContext(ctx).Model(&entryRow{}).Count(&n).Error
	return n, err
}

// Close stops the janitor and closes the database. It is safe to call more
// than once.
func (h *SQLHandler) Close() error {
	var err error
	h.stopOnce.Do(func() {
		close(h.stop)
		sqlDB, dbErr := h.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		err = sqlDB.Close()
	})
	return err
}

var (
	_ cache.Handler = (*SQLHandler)(nil)
	_ cache.Deleter = (*SQLHandler)(nil)
	_ cache.Pinger  = (*SQLHandler)(nil)
)
