package state

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/five82/haikuplus/internal/haiku"
)

func TestStore_UpdateAndSnapshotClone(t *testing.T) {
	var s Store

	stream := []haiku.Haiku{{ID: "1", Author: &haiku.User{ID: "u"}}, {ID: "2"}}

	before := time.Now()
	s.Update(haiku.StreamAll, stream, nil)

	snap := s.Snapshot()
	if !snap.HasStream || len(snap.Stream) != 2 || snap.Stream[0].ID != "1" {
		t.Fatalf("snapshot stream = %#v, want 2 items", snap.Stream)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Stream[0].ID = "999"
	snap.Stream[0].Author.ID = "changed"
	snap2 := s.Snapshot()
	if snap2.Stream[0].ID != "1" || snap2.Stream[0].Author.ID != "u" {
		t.Fatalf("Snapshot should deep-clone stream; got %#v", snap2.Stream[0])
	}
	stream[0].Author.ID = "caller"
	if s.Snapshot().Stream[0].Author.ID != "u" {
		t.Fatalf("Update should copy the caller's slice")
	}
}

func TestStore_UpdateErrorKeepsPreviousData(t *testing.T) {
	var s Store

	s.Update(haiku.StreamAll, []haiku.Haiku{{ID: "1"}}, nil)

	before := time.Now()
	origErr := errors.New("boom")
	s.Update(haiku.StreamAll, nil, origErr)

	snap := s.Snapshot()
	if len(snap.Stream) != 1 || snap.Stream[0].ID != "1" {
		t.Fatalf("stream changed on error: got %#v", snap.Stream)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	snap := s.Snapshot()
	if snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("fresh store failures = %d offline = %v", snap.ConsecutiveFailures, snap.IsOffline())
	}

	s.Update(haiku.StreamAll, nil, errors.New("fail 1"))
	if snap = s.Snapshot(); snap.ConsecutiveFailures != 1 || snap.IsOffline() {
		t.Fatalf("after 1 failure: failures = %d offline = %v", snap.ConsecutiveFailures, snap.IsOffline())
	}

	s.Update(haiku.StreamAll, nil, errors.New("fail 2"))
	if snap = s.Snapshot(); snap.ConsecutiveFailures != 2 || !snap.IsOffline() {
		t.Fatalf("after 2 failures: failures = %d offline = %v", snap.ConsecutiveFailures, snap.IsOffline())
	}

	s.Update(haiku.StreamAll, []haiku.Haiku{}, nil)
	if snap = s.Snapshot(); snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("after success: failures = %d offline = %v", snap.ConsecutiveFailures, snap.IsOffline())
	}
}

func TestStore_ModeSwitchDropsStaleResults(t *testing.T) {
	var s Store
	s.Update(haiku.StreamAll, []haiku.Haiku{{ID: "1"}}, nil)

	s.SetMode(haiku.StreamFriends)
	if snap := s.Snapshot(); snap.HasStream || len(snap.Stream) != 0 {
		t.Fatalf("stream kept across mode switch: %#v", snap.Stream)
	}

	// A late response for the old mode must not land in the new one.
	s.Update(haiku.StreamAll, []haiku.Haiku{{ID: "stale"}}, nil)
	if snap := s.Snapshot(); snap.HasStream {
		t.Fatalf("stale all-stream result applied to friends view")
	}

	s.Update(haiku.StreamFriends, []haiku.Haiku{{ID: "f"}}, nil)
	if snap := s.Snapshot(); snap.Mode != haiku.StreamFriends || snap.Stream[0].ID != "f" {
		t.Fatalf("snapshot = %#v, want friends stream", snap)
	}
}

func TestStore_ApplyVoteIsReconciledByNextFetch(t *testing.T) {
	var s Store
	s.Update(haiku.StreamAll, []haiku.Haiku{{ID: "42", Votes: 5}}, nil)

	voted, ok := s.ApplyVote("42")
	if !ok || voted.Votes != 6 {
		t.Fatalf("ApplyVote = %#v, %v; want votes 6", voted, ok)
	}
	if _, ok := s.ApplyVote("missing"); ok {
		t.Fatalf("ApplyVote(missing) = true")
	}

	s.Update(haiku.StreamAll, []haiku.Haiku{{ID: "42", Votes: 5}}, nil)
	if h, _ := s.Snapshot().Find("42"); h.Votes != 5 {
		t.Fatalf("votes after refetch = %d, want server value 5", h.Votes)
	}

	s.ApplyVote("42")
	if !s.UpdateHaiku(haiku.Haiku{ID: "42", Votes: 9}) {
		t.Fatalf("UpdateHaiku(42) = false")
	}
	if h, _ := s.Snapshot().Find("42"); h.Votes != 9 {
		t.Fatalf("votes after UpdateHaiku = %d, want 9", h.Votes)
	}
}

func TestStore_UserPrependAndReset(t *testing.T) {
	var s Store
	s.SetMode(haiku.StreamFriends)
	s.SetUser(&haiku.User{ID: "1", GoogleDisplayName: "Ted"})
	s.Prepend(haiku.Haiku{ID: "new"})

	snap := s.Snapshot()
	if snap.User == nil || snap.User.GoogleDisplayName != "Ted" {
		t.Fatalf("user = %#v, want Ted", snap.User)
	}
	if len(snap.Stream) != 1 || snap.Stream[0].ID != "new" {
		t.Fatalf("stream = %#v, want prepended haiku", snap.Stream)
	}

	s.Reset()
	snap = s.Snapshot()
	if snap.User != nil || len(snap.Stream) != 0 {
		t.Fatalf("Reset left data: %#v", snap)
	}
	if snap.Mode != haiku.StreamFriends {
		t.Fatalf("Reset changed mode to %v", snap.Mode)
	}
}
