package authority

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fieldtally/fieldtally/pkg/numbering"
)

// DefaultDuplicateWindow is how far back the boundary duplicate guard
// looks for a matching tuple.
const DefaultDuplicateWindow = 10 * time.Second

// Config configures the authority store.
type Config struct {
	// DSN is the MySQL connection string.
	DSN string

	// DuplicateWindow is the boundary duplicate-guard window. Zero
	// means DefaultDuplicateWindow.
	DuplicateWindow time.Duration

	// MaxOpenConns bounds the pool. Zero means the driver default.
	MaxOpenConns int
}

func (c *Config) Validate() error {
	if c.DSN == "" {
		return errors.New("authority config: dsn is required")
	}
	if c.DuplicateWindow < 0 {
		return errors.New("authority config: duplicate window must not be negative")
	}
	return nil
}

// Store persists committed results in MySQL.
type Store struct {
	db     *gorm.DB
	window time.Duration
	now    func() time.Time
}

// Open connects to MySQL and migrates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)

	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open authority database: %w", err)
	}

	if sqlDB, derr := db.DB(); derr == nil && cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.WithContext(ctx).AutoMigrate(&CommittedResult{}); err != nil {
		return nil, fmt.Errorf("migrate authority schema: %w", err)
	}

	return NewStore(db, cfg.DuplicateWindow), nil
}

// NewStore wraps an existing gorm handle. Used directly by tests.
func NewStore(db *gorm.DB, window time.Duration) *Store {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &Store{
		db:     db,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// duplicateCutoff is the oldest accepted_at a committed row may carry
// and still coalesce an incoming duplicate. Zero window means the
// store's configured window.
func (s *Store) duplicateCutoff(window time.Duration) time.Time {
	if window <= 0 {
		window = s.window
	}
	return s.now().Add(-window)
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CheckHealth pings the database. Satisfies the server's health
// checker interface.
func (s *Store) CheckHealth(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Incoming is one client-submitted result awaiting acceptance.
type Incoming struct {
	LocalID     string
	ItemName    string
	ItemType    string
	Location    string
	Frequency   string
	Category    string
	AssetNumber int
	Outcome     string

	ReasonCode    string
	RemedialWork  string
	Note          string
	AttachmentKey string

	CreatedAt time.Time
}

// RowError describes why one incoming row was rejected.
type RowError struct {
	Index  int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("result %d: %s", e.Index, e.Reason)
}

// ValidateBatch checks every incoming row. The whole batch is rejected
// on the first bad row so the client's ordered list stays intact.
func ValidateBatch(results []Incoming) error {
	seen := make(map[int]int, len(results))
	for i, r := range results {
		if r.ItemName == "" {
			return &RowError{Index: i, Reason: "item name is required"}
		}
		if r.Outcome != "pass" && r.Outcome != "fail" {
			return &RowError{Index: i, Reason: fmt.Sprintf("unknown outcome %q", r.Outcome)}
		}
		cat := numbering.Category(r.Category)
		if !cat.Valid() {
			return &RowError{Index: i, Reason: fmt.Sprintf("unknown category %q", r.Category)}
		}
		got, ok := numbering.CategoryForNumber(r.AssetNumber)
		if !ok || got != cat {
			return &RowError{Index: i, Reason: fmt.Sprintf("asset number %d is outside the %s range", r.AssetNumber, r.Category)}
		}
		if prev, dup := seen[r.AssetNumber]; dup {
			return &RowError{Index: i, Reason: fmt.Sprintf("asset number %d already used by result %d", r.AssetNumber, prev)}
		}
		seen[r.AssetNumber] = i
	}
	return nil
}

// CommitBatch accepts a session's batch in a single transaction. Every
// row lands or none do. A row whose tuple matches one accepted within
// the duplicate window coalesces onto the existing row instead of
// inserting.
func (s *Store) CommitBatch(ctx context.Context, sessionID string, results []Incoming) ([]CommittedResult, error) {
	if len(results) == 0 {
		return nil, errors.New("empty batch")
	}
	if err := ValidateBatch(results); err != nil {
		return nil, err
	}

	accepted := make([]CommittedResult, 0, len(results))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		cutoff := s.duplicateCutoff(0)

		for _, r := range results {
			existing, err := recentMatchTx(tx, Tuple{
				SessionID: sessionID,
				ItemName:  r.ItemName,
				ItemType:  r.ItemType,
				Location:  r.Location,
				Category:  r.Category,
			}, cutoff)
			if err != nil {
				return err
			}
			if existing != nil {
				existing.Coalesced = true
				accepted = append(accepted, *existing)
				continue
			}

			row := CommittedResult{
				ID:              uuid.NewString(),
				SessionID:       sessionID,
				LocalID:         r.LocalID,
				ItemName:        r.ItemName,
				ItemType:        r.ItemType,
				Location:        r.Location,
				Frequency:       r.Frequency,
				Category:        r.Category,
				AssetNumber:     r.AssetNumber,
				Outcome:         r.Outcome,
				ReasonCode:      r.ReasonCode,
				RemedialWork:    r.RemedialWork,
				Note:            r.Note,
				AttachmentKey:   r.AttachmentKey,
				ClientCreatedAt: r.CreatedAt.UTC(),
				AcceptedAt:      now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert result %s: %w", r.LocalID, err)
			}
			accepted = append(accepted, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

func recentMatchTx(tx *gorm.DB, tu Tuple, cutoff time.Time) (*CommittedResult, error) {
	var row CommittedResult
	err := tx.
		Where("session_id = ? AND item_name = ? AND item_type = ? AND location = ? AND category = ? AND accepted_at >= ?",
			tu.SessionID, tu.ItemName, tu.ItemType, tu.Location, tu.Category, cutoff).
		Order("accepted_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("duplicate guard lookup: %w", err)
	}
	return &row, nil
}

// RecentMatch reports the most recent committed row matching the
// tuple within the window, or nil.
func (s *Store) RecentMatch(ctx context.Context, tu Tuple, window time.Duration) (*CommittedResult, error) {
	return recentMatchTx(s.db.WithContext(ctx), tu, s.duplicateCutoff(window))
}

// ListBySession returns the session's committed rows in the register
// order they were accepted.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]CommittedResult, error) {
	var rows []CommittedResult
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("accepted_at ASC, asset_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list session %s: %w", sessionID, err)
	}
	return rows, nil
}

// DeleteSession removes every row for the session and reports how many
// were deleted.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&CommittedResult{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete session %s: %w", sessionID, res.Error)
	}
	return res.RowsAffected, nil
}
