package track

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"configtrack/internal/cache"
	"configtrack/internal/change"
	"configtrack/internal/rpc"
	"configtrack/internal/store"
)

const env = "https://api.example.com/v1"

// scriptedCaller serves canned results per tool name and records the
// sequence of calls it saw.
type scriptedCaller struct {
	results map[string]*rpc.Result
	errs    map[string]error
	calls   []string
}

func (f *scriptedCaller) Call(ctx context.Context, name string, args map[string]any) (*rpc.Result, error) {
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("tool %s failed: not found", name)
}

type fakeStore struct {
	store.Store

	commits   []*change.ConfigCommit
	snapshots []change.Snapshot
	latest    string
	saveErr   error
}

func (f *fakeStore) SaveCommit(ctx context.Context, commit *change.ConfigCommit) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.commits = append(f.commits, commit)
	f.latest = commit.Hash
	return nil
}

func (f *fakeStore) LatestHash(ctx context.Context, environment string) (string, error) {
	return f.latest, nil
}

func (f *fakeStore) SaveSnapshot(ctx context.Context, snapshot change.Snapshot) error {
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

func newTestSession(caller rpc.Caller, commits store.Store) *Session {
	s := NewSession(env, "chat-1", caller, cache.NewMemory(), commits)
	s.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	return s
}

func obj(pairs ...any) map[string]any {
	m := map[string]any{}
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i].(string)] = pairs[i+1]
	}
	return m
}

func TestCall_UnclassifiedToolPassesThrough(t *testing.T) {
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"search_documents": {Payload: []any{"doc1"}},
	}}
	s := newTestSession(caller, nil)

	payload, err := s.Call(context.Background(), "search_documents", obj("query", "x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.([]any)[0] != "doc1" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("untracked call must not record changes")
	}
}

func TestCall_ReadWarmsCache(t *testing.T) {
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"get_queue": {Payload: obj("id", "42", "name", "Invoices")},
	}}
	s := newTestSession(caller, nil)

	if _, err := s.Call(context.Background(), "get_queue", obj("queue_id", "42")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cached, ok, _ := s.snapshots.Get(context.Background(), "queue", "42")
	if !ok || cached["name"] != "Invoices" {
		t.Fatalf("read result not cached: ok=%v %v", ok, cached)
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("reads must not record changes")
	}
}

func TestCall_UpdateUsesCachedBeforeAndFreshAfter(t *testing.T) {
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"update_queue": {Payload: obj("id", "42")},
		"get_queue":    {Payload: obj("id", "42", "name", "Invoices EU", "active", true)},
	}}
	s := newTestSession(caller, nil)
	before := obj("id", "42", "name", "Invoices", "active", true)
	s.snapshots.Put(context.Background(), "queue", "42", before)

	if _, err := s.Call(context.Background(), "update_queue", obj("queue_id", "42", "name", "Invoices EU")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending change, got %d", len(pending))
	}
	ec := pending[0]
	if ec.Operation != change.OpUpdate || ec.EntityType != "queue" || ec.EntityID != "42" {
		t.Fatalf("unexpected change %+v", ec)
	}
	if ec.Before["name"] != "Invoices" {
		t.Fatalf("before should come from cache, got %v", ec.Before)
	}
	if ec.After["name"] != "Invoices EU" {
		t.Fatalf("after should come from the fresh read, got %v", ec.After)
	}
	// The before came from the cache, so only update + fresh read hit the API.
	if len(caller.calls) != 2 || caller.calls[0] != "update_queue" || caller.calls[1] != "get_queue" {
		t.Fatalf("unexpected call sequence %v", caller.calls)
	}
}

func TestCall_UpdateFetchesBeforeOnCacheMiss(t *testing.T) {
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"update_hook": {Payload: obj("id", "7")},
		"get_hook":    {Payload: obj("id", "7", "name", "Webhook")},
	}}
	s := newTestSession(caller, nil)

	if _, err := s.Call(context.Background(), "update_hook", obj("hook_id", "7")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(caller.calls) != 3 || caller.calls[0] != "get_hook" || caller.calls[1] != "update_hook" || caller.calls[2] != "get_hook" {
		t.Fatalf("expected before-fetch, write, after-fetch; got %v", caller.calls)
	}
	pending := s.Pending()
	if pending[0].Before == nil || pending[0].After == nil {
		t.Fatalf("expected both states resolved, got %+v", pending[0])
	}
}

func TestCall_SnapshotFetchFailureDegradesToNil(t *testing.T) {
	caller := &scriptedCaller{
		results: map[string]*rpc.Result{
			"delete_rule": {Payload: obj("status", "deleted")},
		},
		errs: map[string]error{"get_rule": errors.New("500 server error")},
	}
	s := newTestSession(caller, nil)

	if _, err := s.Call(context.Background(), "delete_rule", obj("rule_id", "9")); err != nil {
		t.Fatalf("write must not be blocked by a failing snapshot fetch: %v", err)
	}

	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 change, got %d", len(pending))
	}
	if pending[0].Before != nil || pending[0].After != nil {
		t.Fatalf("expected degraded nil states, got %+v", pending[0])
	}
}

func TestCall_CreateRecordsAfterFromResult(t *testing.T) {
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"create_queue": {Payload: obj("id", float64(101), "name", "New Queue")},
	}}
	s := newTestSession(caller, nil)

	payload, err := s.Call(context.Background(), "create_queue", obj("name", "New Queue"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.(map[string]any)["name"] != "New Queue" {
		t.Fatalf("unexpected payload %v", payload)
	}

	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 change, got %d", len(pending))
	}
	ec := pending[0]
	if ec.Operation != change.OpCreate || ec.EntityID != "101" {
		t.Fatalf("unexpected change %+v", ec)
	}
	if ec.Before != nil {
		t.Fatalf("create must have nil before")
	}
	if ec.EntityName != "New Queue" {
		t.Fatalf("unexpected entity name %q", ec.EntityName)
	}
}

func TestCall_FailedWriteRecordsNothing(t *testing.T) {
	caller := &scriptedCaller{errs: map[string]error{"create_queue": errors.New("boom")}}
	s := newTestSession(caller, nil)

	if _, err := s.Call(context.Background(), "create_queue", obj("name", "q")); err == nil {
		t.Fatalf("expected error to propagate")
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("failed write must record nothing")
	}
}

func TestCall_DistinctEntitiesAccumulate(t *testing.T) {
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"create_queue": {Payload: obj("id", "1")},
		"create_hook":  {Payload: obj("id", "2")},
		"create_rule":  {Payload: obj("id", "3")},
	}}
	s := newTestSession(caller, nil)

	for _, tool := range []string{"create_queue", "create_hook", "create_rule"} {
		if _, err := s.Call(context.Background(), tool, obj()); err != nil {
			t.Fatalf("%s: %v", tool, err)
		}
	}
	if len(s.Pending()) != 3 {
		t.Fatalf("expected 3 pending changes, got %d", len(s.Pending()))
	}
}

func TestCall_SameOperationNeverMergesImplicitly(t *testing.T) {
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"update_queue": {Payload: obj("id", "1")},
		"get_queue":    {Payload: obj("id", "1", "name", "q")},
	}}
	s := newTestSession(caller, nil)

	for i := 0; i < 3; i++ {
		if _, err := s.Call(context.Background(), "update_queue", obj("queue_id", "1")); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	if len(s.Pending()) != 3 {
		t.Fatalf("expected 3 pending changes before any flush, got %d", len(s.Pending()))
	}
}

func TestCall_AutoCommitOnOperationChange(t *testing.T) {
	st := &fakeStore{}
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"create_queue": {Payload: obj("id", "55", "name", "Temp")},
		"delete_queue": {Payload: obj("status", "deleted")},
		"get_queue":    {Payload: obj("id", "55", "name", "Temp")},
	}}
	s := newTestSession(caller, st)

	if _, err := s.Call(context.Background(), "create_queue", obj("name", "Temp")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Call(context.Background(), "delete_queue", obj("queue_id", "55")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(st.commits) != 1 {
		t.Fatalf("expected the create to be auto-committed, got %d commits", len(st.commits))
	}
	if st.commits[0].Changes[0].Operation != change.OpCreate {
		t.Fatalf("auto-committed change should be the create: %+v", st.commits[0].Changes)
	}
	pending := s.Pending()
	if len(pending) != 1 || pending[0].Operation != change.OpDelete {
		t.Fatalf("delete should remain pending after the flush: %+v", pending)
	}
}

func TestCall_SameEntitySameOperationDoesNotAutoCommit(t *testing.T) {
	st := &fakeStore{}
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"update_schema": {Payload: obj("id", "100")},
		"get_schema":    {Payload: obj("id", "100", "name", "s")},
	}}
	s := newTestSession(caller, st)

	for i := 0; i < 2; i++ {
		if _, err := s.Call(context.Background(), "update_schema", obj("schema_id", "100")); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	if len(st.commits) != 0 {
		t.Fatalf("prune-then-patch style repeats must not auto-commit")
	}
	if len(s.Pending()) != 2 {
		t.Fatalf("expected 2 pending changes, got %d", len(s.Pending()))
	}
}

func TestCall_TrackedSideEffectsRecorded(t *testing.T) {
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"create_queue": {
			Payload: obj("id", "60", "name", "Receipts"),
			Tracked: []rpc.TrackedResource{
				{EntityType: "schema", EntityID: "600", Data: obj("id", "600", "name", "Receipts schema")},
				{EntityType: "engine", EntityID: "601", Data: obj("id", "601")},
			},
		},
	}}
	s := newTestSession(caller, nil)

	payload, err := s.Call(context.Background(), "create_queue", obj("name", "Receipts"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, leaked := payload.(map[string]any)["_tracked_resources"]; leaked {
		t.Fatalf("side channel leaked to the caller: %v", payload)
	}

	pending := s.Pending()
	if len(pending) != 3 {
		t.Fatalf("expected primary + 2 side-effect changes, got %d", len(pending))
	}
	if pending[1].EntityType != "schema" || pending[1].Operation != change.OpCreate {
		t.Fatalf("unexpected side-effect change %+v", pending[1])
	}
	if pending[1].After["name"] != "Receipts schema" {
		t.Fatalf("side-effect data should become after-state: %+v", pending[1])
	}
}

func TestFlush(t *testing.T) {
	t.Run("empty pending is a no-op", func(t *testing.T) {
		s := newTestSession(&scriptedCaller{}, &fakeStore{})
		commit, err := s.Flush(context.Background(), "msg", "")
		if err != nil || commit != nil {
			t.Fatalf("expected nil, nil; got %v, %v", commit, err)
		}
	})

	t.Run("no store", func(t *testing.T) {
		s := newTestSession(&scriptedCaller{}, nil)
		s.pending = []change.EntityChange{{EntityType: "queue", EntityID: "1", Operation: change.OpCreate}}
		if _, err := s.Flush(context.Background(), "msg", ""); !errors.Is(err, ErrTrackingUnavailable) {
			t.Fatalf("expected ErrTrackingUnavailable, got %v", err)
		}
	})

	t.Run("builds commit and links parent", func(t *testing.T) {
		st := &fakeStore{latest: "parent-hash"}
		s := newTestSession(&scriptedCaller{}, st)
		s.pending = []change.EntityChange{{EntityType: "queue", EntityID: "1", Operation: change.OpCreate, After: obj("id", "1")}}

		commit, err := s.Flush(context.Background(), "Created a queue", "make me a queue")
		if err != nil {
			t.Fatalf("flush: %v", err)
		}
		if commit.Parent != "parent-hash" {
			t.Fatalf("expected parent link, got %q", commit.Parent)
		}
		if commit.Environment != env || commit.ChatID != "chat-1" {
			t.Fatalf("unexpected commit metadata %+v", commit)
		}
		if commit.UserRequest != "make me a queue" {
			t.Fatalf("unexpected user request %q", commit.UserRequest)
		}
		if len(s.Pending()) != 0 {
			t.Fatalf("pending must clear after a successful flush")
		}
		if st.latest != commit.Hash {
			t.Fatalf("latest pointer not moved")
		}
	})

	t.Run("save failure keeps pending", func(t *testing.T) {
		st := &fakeStore{saveErr: errors.New("redis down")}
		s := newTestSession(&scriptedCaller{}, st)
		s.pending = []change.EntityChange{{EntityType: "queue", EntityID: "1", Operation: change.OpCreate}}

		if _, err := s.Flush(context.Background(), "msg", ""); err == nil {
			t.Fatalf("expected error")
		}
		if len(s.Pending()) != 1 {
			t.Fatalf("pending changes must survive a failed save")
		}
	})
}

func TestCall_WriteSavesAuditSnapshot(t *testing.T) {
	st := &fakeStore{}
	caller := &scriptedCaller{results: map[string]*rpc.Result{
		"create_queue": {Payload: obj("id", "1", "name", "q")},
	}}
	s := newTestSession(caller, st)

	if _, err := s.Call(context.Background(), "create_queue", obj("name", "q")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(st.snapshots) != 1 {
		t.Fatalf("expected an audit snapshot, got %d", len(st.snapshots))
	}
	snap := st.snapshots[0]
	if snap.EntityType != "queue" || snap.EntityID != "1" || snap.Environment != env {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
