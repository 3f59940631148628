package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"sc2builds/internal/buildorder"
	"sc2builds/internal/db"
)

type fakeLoader struct {
	replays map[uuid.UUID][]byte
	err     error
}

func (f *fakeLoader) GetReplay(_ context.Context, id uuid.UUID) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.replays[id]
	if !ok {
		return nil, db.ErrReplayNotFound
	}
	return data, nil
}

type fakeDecoder struct {
	match *buildorder.Match
	err   error
	calls int
}

func (f *fakeDecoder) Decode(id uuid.UUID, _ []byte) (*buildorder.Match, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	m := *f.match
	m.ID = id
	return &m, nil
}

type fakeStore struct {
	written []*buildorder.BuildOrder
	opts    []buildorder.Options
	err     error
}

func (f *fakeStore) WriteBuildOrder(_ context.Context, bo *buildorder.BuildOrder, opts buildorder.Options) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, bo)
	f.opts = append(f.opts, opts)
	return nil
}

func probeMatch() *buildorder.Match {
	return &buildorder.Match{
		Participants: []buildorder.Participant{{ID: 1, Name: "Alice", Faction: "Protoss"}},
		Events: []buildorder.Event{
			buildorder.ResourceSnapshotEvent{Frame: 0, PID: 1, Used: 12, Capacity: 15},
			buildorder.ObjectCreatedEvent{Frame: 384, PID: 1, ObjectID: 7, TypeName: "Probe"},
		},
	}
}

func newTestProcessor(loader *fakeLoader, decoder *fakeDecoder, store *fakeStore) *BuildOrderProcessor {
	engine := buildorder.NewEngine(nil, buildorder.DefaultHeuristics())
	return NewBuildOrderProcessor(loader, decoder, engine, store)
}

func TestHandleWritesBuildOrder(t *testing.T) {
	id := uuid.New()
	loader := &fakeLoader{replays: map[uuid.UUID][]byte{id: []byte("replay")}}
	decoder := &fakeDecoder{match: probeMatch()}
	store := &fakeStore{}
	p := newTestProcessor(loader, decoder, store)

	payload, err := NewJobPayload(id, buildorder.Options{Player: "Alice"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if err := p.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(store.written) != 1 {
		t.Fatalf("expected one write, got %d", len(store.written))
	}
	bo := store.written[0]
	if bo.MatchID != id || bo.Player.Name != "Alice" {
		t.Fatalf("unexpected build order header: %+v", bo)
	}
	if len(bo.Lines) != 1 || bo.Lines[0] != "[12] [00:12] Probe" {
		t.Fatalf("unexpected lines: %v", bo.Lines)
	}
	if store.opts[0].Player != "Alice" {
		t.Fatalf("expected options to be passed through, got %+v", store.opts[0])
	}
}

func TestHandleSkipsMissingMatch(t *testing.T) {
	decoder := &fakeDecoder{match: probeMatch()}
	store := &fakeStore{}
	p := newTestProcessor(&fakeLoader{}, decoder, store)

	payload, _ := NewJobPayload(uuid.New(), buildorder.Options{})
	if err := p.Handle(context.Background(), payload); err != nil {
		t.Fatalf("expected missing match to be dropped, got %v", err)
	}
	if decoder.calls != 0 || len(store.written) != 0 {
		t.Fatalf("expected no decode or write for a missing match")
	}
}

func TestHandleSkipsMatchWithoutPlayers(t *testing.T) {
	id := uuid.New()
	loader := &fakeLoader{replays: map[uuid.UUID][]byte{id: nil}}
	decoder := &fakeDecoder{match: &buildorder.Match{
		Participants: []buildorder.Participant{{ID: 1, Name: "Caster", Observer: true}},
	}}
	store := &fakeStore{}
	p := newTestProcessor(loader, decoder, store)

	payload, _ := NewJobPayload(id, buildorder.Options{})
	if err := p.Handle(context.Background(), payload); err != nil {
		t.Fatalf("expected observer-only match to be dropped, got %v", err)
	}
	if len(store.written) != 0 {
		t.Fatalf("expected no write")
	}
}

func TestHandleReturnsRetryableErrors(t *testing.T) {
	id := uuid.New()
	payload, _ := NewJobPayload(id, buildorder.Options{})

	cases := []struct {
		name    string
		loader  *fakeLoader
		decoder *fakeDecoder
		store   *fakeStore
	}{
		{
			name:    "load failure",
			loader:  &fakeLoader{err: errors.New("connection reset")},
			decoder: &fakeDecoder{match: probeMatch()},
			store:   &fakeStore{},
		},
		{
			name:    "decode failure",
			loader:  &fakeLoader{replays: map[uuid.UUID][]byte{id: nil}},
			decoder: &fakeDecoder{err: errors.New("bad archive")},
			store:   &fakeStore{},
		},
		{
			name:    "write failure",
			loader:  &fakeLoader{replays: map[uuid.UUID][]byte{id: nil}},
			decoder: &fakeDecoder{match: probeMatch()},
			store:   &fakeStore{err: errors.New("deadlock")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProcessor(tc.loader, tc.decoder, tc.store)
			if err := p.Handle(context.Background(), payload); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestHandleRejectsBadPayload(t *testing.T) {
	p := newTestProcessor(&fakeLoader{}, &fakeDecoder{match: probeMatch()}, &fakeStore{})
	if err := p.Handle(context.Background(), []byte("{")); err == nil {
		t.Fatalf("expected JSON error")
	}
	bad, _ := json.Marshal(JobPayload{MatchID: "not-a-uuid"})
	if err := p.Handle(context.Background(), bad); err == nil {
		t.Fatalf("expected match id error")
	}
}
