package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/obsidianstack/threadwork/pkg/types"
	"github.com/obsidianstack/threadwork/server/internal/config"
)

// DefaultLimit caps Query results when the caller passes no limit.
const DefaultLimit = 100

const pruneInterval = time.Hour

// Run is one persisted audit run.
type Run struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	PageURL          string    `gorm:"index:idx_page_fetch,priority:1;not null" json:"page_url"`
	FetchTime        time.Time `gorm:"index:idx_page_fetch,priority:2" json:"fetch_time"`
	ReceivedAt       time.Time `gorm:"index" json:"received_at"`
	GatherMode       string    `json:"gather_mode"`
	ThrottlingMethod string    `json:"throttling_method"`
	RuntimeError     string    `json:"runtime_error,omitempty"`
	Score            *float64  `json:"score"`
	TotalMs          float64   `json:"total_ms"`
	SavingsMs        float64   `json:"savings_ms"`
	LongTasks        int       `json:"long_tasks"`
	LongestTaskMs    float64   `json:"longest_task_ms"`
	Categories       string    `json:"-"`
}

// CategoryMs decodes the stored per-category breakdown.
func (r Run) CategoryMs() map[string]float64 {
	if r.Categories == "" {
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(r.Categories), &m); err != nil {
		return nil
	}
	return m
}

// Store is a gorm-backed report history.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the database described by cfg and migrates the schema.
func Open(cfg config.StorageConfig, log *slog.Logger) (*Store, error) {
	dsn := cfg.Path
	if cfg.Backend == "memory" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", dsn, err)
	}
	// SQLite allows one writer; an in-memory database also exists per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Run{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save records r. Saving the same report ID twice overwrites the row.
func (s *Store) Save(ctx context.Context, r *types.Report) error {
	row := Run{
		ID:               r.ID,
		PageURL:          r.PageURL(),
		FetchTime:        r.FetchTime.UTC(),
		ReceivedAt:       s.now().UTC(),
		GatherMode:       string(r.GatherMode),
		ThrottlingMethod: r.ThrottlingMethod,
	}
	if r.RuntimeError != nil {
		row.RuntimeError = r.RuntimeError.Code
	}
	if sum := r.Summary; sum != nil {
		row.Score = types.ScorePtr(sum.Score)
		row.TotalMs = sum.TotalMs
		row.SavingsMs = sum.MetricSavingsMs
		row.LongTasks = sum.LongTaskCount
		row.LongestTaskMs = sum.LongestTaskMs
		if len(sum.Categories) > 0 {
			b, err := json.Marshal(sum.Categories)
			if err != nil {
				return fmt.Errorf("history: save %s: %w", r.ID, err)
			}
			row.Categories = string(b)
		}
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("history: save %s: %w", r.ID, err)
	}
	return nil
}

// Query returns the most recent runs for pageURL, oldest first.
// A limit <= 0 means DefaultLimit.
func (s *Store) Query(ctx context.Context, pageURL string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var rows []Run
	err := s.db.WithContext(ctx).
		Where("page_url = ?", pageURL).
		Order("fetch_time DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("history: query %q: %w", pageURL, err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Pages returns every page URL with at least one stored run.
func (s *Store) Pages(ctx context.Context) ([]string, error) {
	var pages []string
	err := s.db.WithContext(ctx).Model(&Run{}).
		Distinct("page_url").
		Order("page_url").
		Pluck("page_url", &pages).Error
	if err != nil {
		return nil, fmt.Errorf("history: pages: %w", err)
	}
	return pages, nil
}

// Prune deletes runs received before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("received_at < ?", cutoff.UTC()).Delete(&Run{})
	if res.Error != nil {
		return 0, fmt.Errorf("history: prune: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Run prunes rows older than retention every hour until ctx is cancelled.
// A zero retention keeps rows forever and Run just waits.
func (s *Store) Run(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(pruneInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Prune(ctx, s.now().Add(-retention))
			if err != nil {
				slog.Error("history: prune failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("history: pruned runs", "count", n)
			}
		}
	}
}
