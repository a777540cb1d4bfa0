// Package dedup collapses repeated reader taps into a single accepted scan.
package dedup

import (
	"time"

	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
)

const DefaultWindow = 15 * time.Second

// Key identifies scans that may be repeats of each other.
type Key struct {
	IdentityToken string
	DeviceID      string
	EventKind     ledgerdomain.EventKind
}

func KeyOf(record ledgerdomain.LedgerRecord) Key {
	return Key{
		IdentityToken: record.IdentityToken,
		DeviceID:      record.DeviceID,
		EventKind:     record.EventKind,
	}
}

type anchor struct {
	at         time.Time
	sequenceID int64
}

// State maps each key to the last accepted scan. It is a value: Fold never
// modifies the State it was given.
type State struct {
	anchors map[Key]anchor
}

func NewState() State {
	return State{}
}

func (s State) Len() int {
	return len(s.anchors)
}

// Anchor returns the scan time of the last accepted record for key.
func (s State) Anchor(key Key) (time.Time, bool) {
	a, ok := s.anchors[key]
	return a.at, ok
}

func (s State) clone() State {
	anchors := make(map[Key]anchor, len(s.anchors))
	for k, v := range s.anchors {
		anchors[k] = v
	}
	return State{anchors: anchors}
}

type Result struct {
	Records    []ledgerdomain.AnnotatedRecord
	Duplicates int
}

// Fold walks batch in order and annotates every record. A record is a
// duplicate when its key was accepted before and the scan is no more than
// window after that accepted scan. Duplicates never move the anchor.
func Fold(window time.Duration, state State, batch []ledgerdomain.LedgerRecord) (Result, State) {
	if window <= 0 {
		window = DefaultWindow
	}

	next := state.clone()
	result := Result{
		Records: make([]ledgerdomain.AnnotatedRecord, 0, len(batch)),
	}

	for _, record := range batch {
		key := KeyOf(record)
		annotated := ledgerdomain.AnnotatedRecord{Record: record}

		prev, seen := next.anchors[key]
		if seen && record.ScanTimestamp.Sub(prev.at) <= window {
			annotated.Dedup = ledgerdomain.DedupVerdict{
				IsDuplicate:      true,
				Reason:           ledgerdomain.DuplicateWithinWindow,
				AnchorSequenceID: prev.sequenceID,
			}
			result.Duplicates++
		} else {
			next.anchors[key] = anchor{at: record.ScanTimestamp, sequenceID: record.SequenceID}
		}

		result.Records = append(result.Records, annotated)
	}

	return result, next
}

// Batch folds a single batch from an empty state.
func Batch(window time.Duration, batch []ledgerdomain.LedgerRecord) Result {
	result, _ := Fold(window, NewState(), batch)
	return result
}
