package mirror

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("database handle is required")

// Store persists sync records and the per-page diagnostics log. It owns all
// reads and writes of Record rows; the tracker and the ledger writer only
// ever see snapshots.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewStore wraps a database handle. The clock defaults to time.Now.
func NewStore(db *gorm.DB, clock func() time.Time) (*Store, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: db, clock: clock}, nil
}

// Get loads the record for a page. Returns nil without error when the page
// has never been seen.
func (s *Store) Get(ctx context.Context, pageID string) (*Record, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("page_id = ?", pageID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert writes a record, comparing content first so an unchanged record
// produces no write.
func (s *Store) Upsert(ctx context.Context, record Record) error {
	existing, err := s.Get(ctx, record.PageID)
	if err != nil {
		return err
	}
	now := s.clock().UTC().Unix()
	if existing != nil {
		if existing.contentEqual(record) {
			return nil
		}
		record.CreatedAtSeconds = existing.CreatedAtSeconds
	} else {
		record.CreatedAtSeconds = now
	}
	record.UpdatedAtSeconds = now
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "page_id"}},
		UpdateAll: true,
	}).Create(&record).Error
}

// Archive marks a vanished page's record archived. The destination message
// is left untouched and the record is kept for ledger history.
func (s *Store) Archive(ctx context.Context, pageID string) error {
	return s.db.WithContext(ctx).Model(&Record{}).
		Where("page_id = ? AND status <> ?", pageID, StatusArchived).
		Updates(map[string]any{
			"status":       StatusArchived,
			"updated_at_s": s.clock().UTC().Unix(),
		}).Error
}

// Snapshot returns all records ordered by page id.
func (s *Store) Snapshot(ctx context.Context) ([]Record, error) {
	var records []Record
	err := s.db.WithContext(ctx).Order("page_id").Find(&records).Error
	return records, err
}

// AddDiagnostic appends one entry to the durable per-page diagnostics log.
func (s *Store) AddDiagnostic(ctx context.Context, diagnostic Diagnostic) error {
	if diagnostic.RecordedAtSeconds == 0 {
		diagnostic.RecordedAtSeconds = s.clock().UTC().Unix()
	}
	return s.db.WithContext(ctx).Create(&diagnostic).Error
}

// DiagnosticsForPage lists a page's diagnostics, newest first.
func (s *Store) DiagnosticsForPage(ctx context.Context, pageID string) ([]Diagnostic, error) {
	var diagnostics []Diagnostic
	err := s.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order("recorded_at_s DESC").
		Find(&diagnostics).Error
	return diagnostics, err
}
