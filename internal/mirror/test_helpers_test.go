package mirror

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pagepin/internal/page"
)

type fakeSource struct {
	pages       []page.Page
	trees       map[string][]page.Block
	listErr     error
	fetchErr    error
	ledger      map[string]LedgerRow
	ledgerWrite int
}

func (f *fakeSource) ListChildPages(_ context.Context) ([]page.Page, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pages, nil
}

func (f *fakeSource) FetchPageTree(_ context.Context, id page.PageID) ([]page.Block, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.trees[id.String()], nil
}

func (f *fakeSource) QueryLedger(_ context.Context) (map[string]LedgerRow, error) {
	snapshot := make(map[string]LedgerRow, len(f.ledger))
	for key, row := range f.ledger {
		snapshot[key] = row
	}
	return snapshot, nil
}

func (f *fakeSource) UpsertLedgerRow(_ context.Context, row LedgerRow) error {
	if f.ledger == nil {
		f.ledger = make(map[string]LedgerRow)
	}
	f.ledger[row.PageID] = row
	f.ledgerWrite++
	return nil
}

type fakeChat struct {
	nextMessageID int64
	sent          map[int64]string
	edited        map[int64]string
	pinnedSlot    *PinnedMessage
	pinCalls      []int64
	sendErr       error
	editErr       error
	pinErr        error
}

func newFakeChat() *fakeChat {
	return &fakeChat{nextMessageID: 100, sent: map[int64]string{}, edited: map[int64]string{}}
}

func (f *fakeChat) SendMessage(_ context.Context, text string) (int64, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextMessageID++
	f.sent[f.nextMessageID] = text
	return f.nextMessageID, nil
}

func (f *fakeChat) EditMessage(_ context.Context, messageID int64, text string) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edited[messageID] = text
	return nil
}

func (f *fakeChat) PinMessage(_ context.Context, messageID int64) error {
	if f.pinErr != nil {
		return f.pinErr
	}
	f.pinCalls = append(f.pinCalls, messageID)
	f.pinnedSlot = &PinnedMessage{MessageID: messageID}
	return nil
}

func (f *fakeChat) PinnedMessage(_ context.Context) (*PinnedMessage, error) {
	return f.pinnedSlot, nil
}

func (f *fakeChat) MessageURL(messageID int64) string {
	return fmt.Sprintf("https://t.me/c/1234/%d", messageID)
}

func mustPageID(t *testing.T, raw string) page.PageID {
	t.Helper()
	id, err := page.NewPageID(raw)
	if err != nil {
		t.Fatalf("failed to build page id: %v", err)
	}
	return id
}

func newTestService(t *testing.T, source *fakeSource, chat *fakeChat) (*Service, *Store) {
	t.Helper()
	store := newTestStore(t)
	service, err := NewService(ServiceConfig{
		Source:            source,
		Chat:              chat,
		Store:             store,
		SkipTitlePrefixes: []string{"[DRAFT]", "[TG_SYNC]"},
		Clock:             func() time.Time { return time.Unix(1700000000, 0) },
		IDProvider:        NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, store
}

func sourcePage(t *testing.T, raw string, title string, editedAt int64) page.Page {
	t.Helper()
	return page.Page{ID: mustPageID(t, raw), Title: title, EditedAt: time.Unix(editedAt, 0)}
}
