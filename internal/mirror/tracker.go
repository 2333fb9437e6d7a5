package mirror

import "time"

// Action is the tracker's per-page decision for one poll cycle.
type Action string

const (
	// ActionSkip leaves the destination untouched: the stored revision
	// marker matches the source.
	ActionSkip Action = "skip"
	// ActionCreate requests a new destination message.
	ActionCreate Action = "create"
	// ActionEdit updates the existing destination message in place.
	ActionEdit Action = "edit"
)

// Plan decides the push action for a page given its stored record and the
// source's current revision marker. Pure: all state mutation happens in the
// cycle after the push outcome is known.
//
// A nil record is a first sighting and always creates. A failed record
// whose stored marker already matches the source was a permanent failure at
// this revision and skips until the source changes again; a failed record
// with a stale marker was transient and retries. A record without a
// destination message (earlier create failed transiently, or the record was
// archived and the page reappeared) creates. Revision markers are compared
// for inequality, not ordering: a page restored to an older version must
// re-push too.
func Plan(record *Record, revision time.Time) Action {
	if record == nil {
		return ActionCreate
	}
	if record.Status == StatusFailed && record.RevisionAtSeconds == revision.Unix() {
		return ActionSkip
	}
	if record.MessageID == 0 {
		return ActionCreate
	}
	if record.Status == StatusArchived {
		return ActionCreate
	}
	if record.RevisionAtSeconds != revision.Unix() {
		return ActionEdit
	}
	return ActionSkip
}
