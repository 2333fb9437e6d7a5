package mirror

import (
	"testing"
	"time"
)

func TestPlanFirstSightingCreates(t *testing.T) {
	if action := Plan(nil, time.Unix(1700000000, 0)); action != ActionCreate {
		t.Fatalf("expected create for unseen page, got %q", action)
	}
}

func TestPlanRecordWithoutMessageCreates(t *testing.T) {
	// A transient create failure keeps the stale marker, so the next cycle
	// retries the create.
	record := &Record{PageID: "p1", Status: StatusFailed, RevisionAtSeconds: 1699990000}
	if action := Plan(record, time.Unix(1700000000, 0)); action != ActionCreate {
		t.Fatalf("expected create when no destination message exists, got %q", action)
	}
}

func TestPlanPermanentlyFailedCreateSkipsUntilSourceChanges(t *testing.T) {
	// A permanent failure advances the stored marker even without a
	// destination message; that revision is never retried.
	record := &Record{PageID: "p1", Status: StatusFailed, RevisionAtSeconds: 1700000000}
	if action := Plan(record, time.Unix(1700000000, 0)); action != ActionSkip {
		t.Fatalf("expected skip for permanently failed revision, got %q", action)
	}
	if action := Plan(record, time.Unix(1700000500, 0)); action != ActionCreate {
		t.Fatalf("expected create once the source revision moves, got %q", action)
	}
}

func TestPlanPermanentlyFailedEditSkipsUntilSourceChanges(t *testing.T) {
	record := &Record{PageID: "p1", MessageID: 7, Status: StatusFailed, RevisionAtSeconds: 1700000000}
	if action := Plan(record, time.Unix(1700000000, 0)); action != ActionSkip {
		t.Fatalf("expected skip for permanently failed revision, got %q", action)
	}
	if action := Plan(record, time.Unix(1700000500, 0)); action != ActionEdit {
		t.Fatalf("expected edit once the source revision moves, got %q", action)
	}
}

func TestPlanUnchangedRevisionSkips(t *testing.T) {
	record := &Record{PageID: "p1", MessageID: 7, Status: StatusSynced, RevisionAtSeconds: 1700000000}
	if action := Plan(record, time.Unix(1700000000, 0)); action != ActionSkip {
		t.Fatalf("expected skip for unchanged revision, got %q", action)
	}
}

func TestPlanAdvancedRevisionEdits(t *testing.T) {
	record := &Record{PageID: "p1", MessageID: 7, Status: StatusSynced, RevisionAtSeconds: 1700000000}
	if action := Plan(record, time.Unix(1700000500, 0)); action != ActionEdit {
		t.Fatalf("expected edit for advanced revision, got %q", action)
	}
}

func TestPlanOlderRevisionAlsoEdits(t *testing.T) {
	// Markers compare for inequality: a page restored to an older version
	// must re-push.
	record := &Record{PageID: "p1", MessageID: 7, Status: StatusSynced, RevisionAtSeconds: 1700000500}
	if action := Plan(record, time.Unix(1700000000, 0)); action != ActionEdit {
		t.Fatalf("expected edit for regressed revision, got %q", action)
	}
}

func TestPlanArchivedRecordCreatesOnRevival(t *testing.T) {
	record := &Record{PageID: "p1", MessageID: 7, Status: StatusArchived, RevisionAtSeconds: 1700000000}
	if action := Plan(record, time.Unix(1700000000, 0)); action != ActionCreate {
		t.Fatalf("expected create for revived archived page, got %q", action)
	}
}
