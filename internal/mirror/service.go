package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pagepin/internal/markup"
	"github.com/MarcoPoloResearchLab/pagepin/internal/page"
)

var (
	errMissingSource     = errors.New("source client is required")
	errMissingChat       = errors.New("chat client is required")
	errMissingStore      = errors.New("record store is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "mirror.service.new"
	opRunCycle   = "mirror.run_cycle"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// SourceClient is the capability surface of the outline-editing service.
type SourceClient interface {
	// ListChildPages returns the first-level child pages of the configured
	// root page.
	ListChildPages(ctx context.Context) ([]page.Page, error)
	// FetchPageTree returns the ordered top-level blocks of a page, with
	// container children resolved recursively.
	FetchPageTree(ctx context.Context, id page.PageID) ([]page.Block, error)
	// QueryLedger reads the current status-table rows keyed by page id.
	QueryLedger(ctx context.Context) (map[string]LedgerRow, error)
	// UpsertLedgerRow writes one status-table row.
	UpsertLedgerRow(ctx context.Context, row LedgerRow) error
}

// PinnedMessage describes the chat's current pinned slot.
type PinnedMessage struct {
	MessageID int64
	IsPoll    bool
}

// ChatClient is the capability surface of the destination chat application.
type ChatClient interface {
	SendMessage(ctx context.Context, text string) (int64, error)
	EditMessage(ctx context.Context, messageID int64, text string) error
	PinMessage(ctx context.Context, messageID int64) error
	// PinnedMessage returns the chat's pinned slot, or nil when nothing is
	// pinned.
	PinnedMessage(ctx context.Context) (*PinnedMessage, error)
	MessageURL(messageID int64) string
}

// ServiceConfig wires the sync service dependencies.
type ServiceConfig struct {
	Source SourceClient
	Chat   ChatClient
	Store  *Store
	// SkipTitlePrefixes excludes pages whose title starts with any prefix.
	SkipTitlePrefixes []string
	Clock             func() time.Time
	IDProvider        IDProvider
	Logger            *zap.Logger
}

// Service runs the poll-driven reconciliation between source pages and
// destination messages.
type Service struct {
	source       SourceClient
	chat         ChatClient
	store        *Store
	skipPrefixes []string
	clock        func() time.Time
	idProvider   IDProvider
	logger       *zap.Logger

	reportMu    sync.Mutex
	lastReport  CycleReport
	lastCycleAt time.Time
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, newServiceError(opServiceNew, "missing_source", errMissingSource)
	}
	if cfg.Chat == nil {
		return nil, newServiceError(opServiceNew, "missing_chat", errMissingChat)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		source:       cfg.Source,
		chat:         cfg.Chat,
		store:        cfg.Store,
		skipPrefixes: cfg.SkipTitlePrefixes,
		clock:        clock,
		idProvider:   cfg.IDProvider,
		logger:       logger,
	}, nil
}

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	Pages    int
	Pushed   int
	Skipped  int
	Failed   int
	Archived int
}

// Run repeats poll cycles on a fixed interval until the context is
// cancelled. At most one cycle is ever in flight, so overlapping cycles can
// never race to create duplicate destination messages. An in-flight cycle
// finishes its current page on shutdown rather than aborting mid-push.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full reconciliation pass. Per-page failures are
// isolated: one page's failure never aborts the cycle for other pages.
func (s *Service) RunCycle(ctx context.Context) CycleReport {
	var report CycleReport

	pages, err := s.source.ListChildPages(ctx)
	if err != nil {
		s.logger.Error("listing source pages failed", zap.Error(err))
		return report
	}

	seen := make(map[string]bool, len(pages))
	for _, sourcePage := range pages {
		seen[sourcePage.ID.String()] = true
		if s.hasSkipPrefix(sourcePage.Title) {
			s.logger.Debug("skipping page by title prefix", zap.String("title", sourcePage.Title))
			continue
		}
		if ctx.Err() != nil {
			// Shutdown between pages; the page in progress was allowed to
			// finish.
			return report
		}
		report.Pages++
		switch outcome := s.syncPage(ctx, sourcePage); outcome {
		case ActionSkip:
			report.Skipped++
		case ActionCreate, ActionEdit:
			report.Pushed++
		default:
			report.Failed++
		}
	}

	report.Archived = s.archiveVanished(ctx, seen)
	s.reflectLedger(ctx)

	s.logger.Info("cycle complete",
		zap.Int("pages", report.Pages),
		zap.Int("pushed", report.Pushed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("archived", report.Archived),
	)

	s.reportMu.Lock()
	s.lastReport = report
	s.lastCycleAt = s.clock()
	s.reportMu.Unlock()
	return report
}

// LastReport returns the most recent completed cycle's summary and finish
// time. The time is zero before the first cycle completes.
func (s *Service) LastReport() (CycleReport, time.Time) {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	return s.lastReport, s.lastCycleAt
}

// actionFailed marks a page outcome that was neither a push nor a skip.
const actionFailed Action = "failed"

func (s *Service) syncPage(ctx context.Context, sourcePage page.Page) Action {
	pageID := sourcePage.ID.String()
	log := s.logger.With(zap.String("page_id", pageID), zap.String("title", sourcePage.Title))

	record, err := s.store.Get(ctx, pageID)
	if err != nil {
		log.Error("loading record failed", zap.Error(err))
		return actionFailed
	}

	action := Plan(record, sourcePage.EditedAt)
	if action == ActionSkip {
		log.Debug("revision unchanged")
		return ActionSkip
	}
	if record != nil && record.Status == StatusArchived {
		s.recordDiagnostic(ctx, pageID, DiagnosticRevived, "archived page reappeared at source, creating a fresh message")
	}

	blocks, err := s.source.FetchPageTree(ctx, sourcePage.ID)
	if err != nil {
		log.Error("fetching page tree failed", zap.Error(err))
		s.persistFailure(ctx, record, sourcePage, err)
		return actionFailed
	}

	document := markup.Assemble(sourcePage, blocks)
	s.recordRenderNotes(ctx, pageID, document)

	messageID, pushErr := s.push(ctx, action, record, document.Body)
	if pushErr != nil {
		log.Error("push failed", zap.String("action", string(action)), zap.Error(pushErr))
		s.recordDiagnostic(ctx, pageID, DiagnosticPushFailed, pushErr.Error())
		s.persistFailure(ctx, record, sourcePage, pushErr)
		return actionFailed
	}

	pinned := s.pin(ctx, pageID, messageID, log)

	next := Record{
		PageID:            pageID,
		Title:             sourcePage.Title,
		RevisionAtSeconds: sourcePage.EditedAt.Unix(),
		MessageID:         messageID,
		Pinned:            pinned,
		Status:            StatusSynced,
	}
	if err := s.store.Upsert(ctx, next); err != nil {
		log.Error("persisting record failed", zap.Error(err))
		return actionFailed
	}
	log.Info("page pushed", zap.String("action", string(action)), zap.Int64("message_id", messageID))
	return action
}

// push performs the create or edit call. An edit whose target message is
// gone falls back to creating a fresh message.
func (s *Service) push(ctx context.Context, action Action, record *Record, body string) (int64, error) {
	if action == ActionEdit && record != nil && record.MessageID != 0 {
		err := s.chat.EditMessage(ctx, record.MessageID, body)
		if err == nil {
			return record.MessageID, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return 0, err
		}
		s.logger.Warn("edit target vanished, creating new message",
			zap.String("page_id", record.PageID), zap.Int64("message_id", record.MessageID))
	}
	return s.chat.SendMessage(ctx, body)
}

// pin pins the pushed message unless the chat's pinned slot is occupied by a
// poll. A poll is never unpinned or replaced; the conflict is recorded as a
// diagnostic, not an error.
func (s *Service) pin(ctx context.Context, pageID string, messageID int64, log *zap.Logger) bool {
	current, err := s.chat.PinnedMessage(ctx)
	if err != nil {
		log.Warn("reading pinned slot failed", zap.Error(err))
		return false
	}
	if current != nil && current.IsPoll {
		s.recordDiagnostic(ctx, pageID, DiagnosticPinConflict,
			fmt.Sprintf("pinned slot holds poll message %d, pin skipped", current.MessageID))
		return false
	}
	if current != nil && current.MessageID == messageID {
		return true
	}
	if err := s.chat.PinMessage(ctx, messageID); err != nil {
		log.Warn("pinning failed", zap.Error(err))
		return false
	}
	return true
}

// persistFailure records the failed status. A transient failure keeps the
// stored revision marker so the next cycle retries the push; a permanent
// failure advances it so the page is not retried until the source changes
// again.
func (s *Service) persistFailure(ctx context.Context, record *Record, sourcePage page.Page, cause error) {
	next := Record{
		PageID:    sourcePage.ID.String(),
		Title:     sourcePage.Title,
		Status:    StatusFailed,
		LastError: cause.Error(),
	}
	if record != nil {
		next.MessageID = record.MessageID
		next.Pinned = record.Pinned
		next.RevisionAtSeconds = record.RevisionAtSeconds
	}
	if errors.Is(cause, ErrPermanent) {
		next.RevisionAtSeconds = sourcePage.EditedAt.Unix()
	}
	if err := s.store.Upsert(ctx, next); err != nil {
		s.logger.Error("persisting failure state failed",
			zap.String("page_id", next.PageID), zap.Error(err))
	}
}

func (s *Service) recordRenderNotes(ctx context.Context, pageID string, document markup.Document) {
	for _, note := range document.Notes {
		kind := DiagnosticUnsupportedBlock
		if strings.Contains(note, "truncated") {
			kind = DiagnosticTruncated
		}
		s.recordDiagnostic(ctx, pageID, kind, note)
	}
}

func (s *Service) recordDiagnostic(ctx context.Context, pageID string, kind DiagnosticKind, detail string) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logger.Error("allocating diagnostic id failed", zap.Error(err))
		return
	}
	diagnostic := Diagnostic{
		DiagnosticID: id,
		PageID:       pageID,
		Kind:         kind,
		Detail:       detail,
	}
	if err := s.store.AddDiagnostic(ctx, diagnostic); err != nil {
		s.logger.Error("recording diagnostic failed",
			zap.String("page_id", pageID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

// archiveVanished marks records whose pages disappeared from the source.
// Destination messages are left untouched.
func (s *Service) archiveVanished(ctx context.Context, seen map[string]bool) int {
	records, err := s.store.Snapshot(ctx)
	if err != nil {
		s.logger.Error("loading records for archive pass failed", zap.Error(err))
		return 0
	}
	archived := 0
	for _, record := range records {
		if seen[record.PageID] || record.Status == StatusArchived {
			continue
		}
		if err := s.store.Archive(ctx, record.PageID); err != nil {
			s.logger.Error("archiving record failed",
				zap.String("page_id", record.PageID), zap.Error(err))
			continue
		}
		s.logger.Info("page archived", zap.String("page_id", record.PageID))
		archived++
	}
	return archived
}

// reflectLedger mirrors the current record snapshot into the source-owned
// status table. Rows are content-compared against the existing table first,
// so an unchanged snapshot issues no writes.
func (s *Service) reflectLedger(ctx context.Context) {
	records, err := s.store.Snapshot(ctx)
	if err != nil {
		s.logger.Error("loading records for ledger failed", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}
	existing, err := s.source.QueryLedger(ctx)
	if err != nil {
		s.logger.Error("querying status ledger failed", zap.Error(err))
		return
	}
	for _, record := range records {
		row := s.ledgerRow(record)
		if current, ok := existing[record.PageID]; ok && ledgerRowEqual(current, row) {
			continue
		}
		if err := s.source.UpsertLedgerRow(ctx, row); err != nil {
			s.logger.Error("writing ledger row failed",
				zap.String("page_id", record.PageID), zap.Error(err))
		}
	}
}

func (s *Service) ledgerRow(record Record) LedgerRow {
	row := LedgerRow{
		PageID:    record.PageID,
		Title:     record.Title,
		PageURL:   "https://www.notion.so/" + record.PageID,
		UpdatedAt: time.Unix(record.UpdatedAtSeconds, 0).UTC(),
	}
	if record.MessageID != 0 {
		row.MessageURL = s.chat.MessageURL(record.MessageID)
	}
	return row
}

// ledgerRowEqual compares everything the external table stores. Timestamps
// compare at second precision, matching the table's column resolution.
func ledgerRowEqual(a, b LedgerRow) bool {
	return a.PageID == b.PageID &&
		a.Title == b.Title &&
		a.PageURL == b.PageURL &&
		a.MessageURL == b.MessageURL &&
		a.UpdatedAt.Unix() == b.UpdatedAt.Unix()
}

func (s *Service) hasSkipPrefix(title string) bool {
	trimmed := strings.TrimSpace(title)
	for _, prefix := range s.skipPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
