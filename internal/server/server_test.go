package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"sc2builds/internal/buildorder"
	"sc2builds/internal/db"
	"sc2builds/internal/processor"
)

type stubDecoder struct {
	match *buildorder.Match
	err   error
}

func (s stubDecoder) Decode(id uuid.UUID, _ []byte) (*buildorder.Match, error) {
	if s.err != nil {
		return nil, s.err
	}
	m := *s.match
	m.ID = id
	return &m, nil
}

type memoryReplays struct {
	saved map[uuid.UUID][]byte
}

func (m *memoryReplays) SaveReplay(_ context.Context, id uuid.UUID, _ string, data []byte) error {
	m.saved[id] = data
	return nil
}

type memoryQueue struct {
	jobs [][]byte
}

func (m *memoryQueue) Enqueue(_ context.Context, payload []byte) error {
	m.jobs = append(m.jobs, payload)
	return nil
}

type memoryLines map[uuid.UUID][]string

func (m memoryLines) GetLines(_ context.Context, id uuid.UUID, _ string) ([]string, error) {
	lines, ok := m[id]
	if !ok {
		return nil, db.ErrBuildOrderNotFound
	}
	return lines, nil
}

func twoPlayerMatch() *buildorder.Match {
	return &buildorder.Match{
		Participants: []buildorder.Participant{
			{ID: 1, Name: "Alice", Faction: "Protoss"},
			{ID: 2, Name: "Bob", Faction: "Zerg"},
			{ID: 3, Name: "Caster", Faction: "Terran", Observer: true},
		},
		Events: []buildorder.Event{
			buildorder.ResourceSnapshotEvent{Frame: 0, PID: 1, Used: 12, Capacity: 15},
			buildorder.ResourceSnapshotEvent{Frame: 0, PID: 2, Used: 12, Capacity: 14},
			buildorder.ObjectCreatedEvent{Frame: 384, PID: 1, ObjectID: 7, TypeName: "Probe"},
			buildorder.ObjectCreatedEvent{Frame: 400, PID: 2, ObjectID: 8, TypeName: "Drone"},
		},
	}
}

func newHandler(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	if cfg.Builder == nil {
		cfg.Builder = buildorder.NewEngine(nil, buildorder.DefaultHeuristics())
	}
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return h
}

func multipartRequest(t *testing.T, path string, withFile bool, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if withFile {
		fw, err := mw.CreateFormFile("replay", "game.SC2Replay")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write([]byte("replay bytes"))
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newHandler(t, Config{Decoder: stubDecoder{match: twoPlayerMatch()}})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "running") {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestPlayersListsRosterAndMatchup(t *testing.T) {
	h := newHandler(t, Config{Decoder: stubDecoder{match: twoPlayerMatch()}})
	rec := serve(h, multipartRequest(t, "/players", true, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp PlayersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Players) != 2 {
		t.Fatalf("expected observers filtered, got %+v", resp.Players)
	}
	if resp.Matchup == nil || *resp.Matchup != "pvz" {
		t.Fatalf("expected pvz matchup, got %v", resp.Matchup)
	}
}

func TestRosterWithoutOpponentHasNoMatchup(t *testing.T) {
	resp := Roster([]buildorder.Participant{{ID: 1, Name: "Solo", Faction: "Terran"}})
	if resp.Matchup != nil {
		t.Fatalf("expected nil matchup, got %q", *resp.Matchup)
	}
	body, _ := json.Marshal(resp)
	if !strings.Contains(string(body), `"matchup":null`) {
		t.Fatalf("expected null matchup in JSON, got %s", body)
	}
}

func TestUploadRequiresReplay(t *testing.T) {
	h := newHandler(t, Config{Decoder: stubDecoder{match: twoPlayerMatch()}})
	rec := serve(h, multipartRequest(t, "/upload", false, nil))
	if rec.Code != http.StatusBadRequest || rec.Body.String() != "No replay uploaded" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestUploadRejectsUndecodableReplay(t *testing.T) {
	h := newHandler(t, Config{Decoder: stubDecoder{err: errors.New("not an mpq archive")}})
	rec := serve(h, multipartRequest(t, "/upload", true, nil))
	if rec.Code != http.StatusBadRequest || !strings.HasPrefix(rec.Body.String(), "Failed to load replay") {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestUploadNoActivePlayers(t *testing.T) {
	match := &buildorder.Match{Participants: []buildorder.Participant{{ID: 1, Name: "Caster", Observer: true}}}
	h := newHandler(t, Config{Decoder: stubDecoder{match: match}})
	rec := serve(h, multipartRequest(t, "/upload", true, nil))
	if rec.Code != http.StatusBadRequest || rec.Body.String() != "No active players" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestUploadRendersSelectedPlayer(t *testing.T) {
	h := newHandler(t, Config{Decoder: stubDecoder{match: twoPlayerMatch()}})

	rec := serve(h, multipartRequest(t, "/upload", true, map[string]string{"player": "Alice"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "[12] [00:12] Probe" {
		t.Fatalf("unexpected body %q", got)
	}

	rec = serve(h, multipartRequest(t, "/upload", true, map[string]string{"player": "2", "exclude_time": "yes"}))
	if got := rec.Body.String(); got != "[12] Drone" {
		t.Fatalf("unexpected body for player 2: %q", got)
	}

	rec = serve(h, multipartRequest(t, "/upload", true, map[string]string{"player": "Alice", "exclude_workers": "on"}))
	if rec.Code != http.StatusOK || rec.Body.String() != "" {
		t.Fatalf("expected empty build order without workers, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestUploadRejectsBadStopValue(t *testing.T) {
	h := newHandler(t, Config{Decoder: stubDecoder{match: twoPlayerMatch()}})
	rec := serve(h, multipartRequest(t, "/upload", true, map[string]string{"stop_supply": "lots"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on", " On "} {
		if !Truthy(v) {
			t.Fatalf("expected %q to be truthy", v)
		}
	}
	for _, v := range []string{"", "0", "false", "no", "off", "maybe"} {
		if Truthy(v) {
			t.Fatalf("expected %q to be falsy", v)
		}
	}
}

func TestMatchesRoutesRequireStores(t *testing.T) {
	h := newHandler(t, Config{Decoder: stubDecoder{match: twoPlayerMatch()}})
	rec := serve(h, multipartRequest(t, "/matches", true, nil))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected /matches to be unmounted, got %d", rec.Code)
	}
}

func TestSubmitMatchStoresAndEnqueues(t *testing.T) {
	replays := &memoryReplays{saved: make(map[uuid.UUID][]byte)}
	queue := &memoryQueue{}
	h := newHandler(t, Config{
		Decoder: stubDecoder{match: twoPlayerMatch()},
		Replays: replays,
		Queue:   queue,
	})

	rec := serve(h, multipartRequest(t, "/matches", true, map[string]string{"player": "Bob", "compact": "1"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, err := uuid.Parse(resp["match_id"])
	if err != nil {
		t.Fatalf("bad match id %q", resp["match_id"])
	}
	if string(replays.saved[id]) != "replay bytes" {
		t.Fatalf("expected replay stored under %s", id)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(queue.jobs))
	}

	var job processor.JobPayload
	if err := json.Unmarshal(queue.jobs[0], &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.MatchID != id.String() || job.Options.Player != "Bob" || !job.Options.Compact {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestStoredBuildOrder(t *testing.T) {
	id := uuid.New()
	h := newHandler(t, Config{
		Decoder: stubDecoder{match: twoPlayerMatch()},
		Lines:   memoryLines{id: {"[12] [00:12] Probe", "[14] [00:40] Gateway"}},
	})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/matches/"+id.String()+"/build-order", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || string(body) != "[12] [00:12] Probe\n[14] [00:40] Gateway" {
		t.Fatalf("unexpected response %d %q", rec.Code, body)
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/matches/"+uuid.NewString()+"/build-order", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/matches/nope/build-order", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	h := newHandler(t, Config{
		Decoder:        stubDecoder{match: twoPlayerMatch()},
		AllowedOrigins: []string{"https://builds.example"},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://builds.example")
	rec := serve(h, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://builds.example" {
		t.Fatalf("unexpected allow-origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = serve(h, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", "https://builds.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = serve(h, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://builds.example" {
		t.Fatalf("preflight allow-origin %q", got)
	}
}

func TestCORSDefaultsToAnyOrigin(t *testing.T) {
	h := newHandler(t, Config{Decoder: stubDecoder{match: twoPlayerMatch()}})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := serve(h, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}

func TestUploadIllusionHeuristics(t *testing.T) {
	match := &buildorder.Match{
		Participants: []buildorder.Participant{{ID: 1, Name: "Alice", Faction: "Protoss"}},
		Events: []buildorder.Event{
			buildorder.ResourceSnapshotEvent{Frame: 0, PID: 1, Used: 30, Capacity: 39},
			buildorder.ObjectCreatedEvent{Frame: 800, PID: 1, ObjectID: 20, TypeName: "Phoenix"},
		},
	}
	h := newHandler(t, Config{Decoder: stubDecoder{match: match}})

	rec := serve(h, multipartRequest(t, "/upload", true, nil))
	if strings.Contains(rec.Body.String(), "Hallucination") {
		t.Fatalf("decoy flagged without the option: %q", rec.Body.String())
	}
	rec = serve(h, multipartRequest(t, "/upload", true, map[string]string{"illusion_heuristics": "true"}))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Phoenix (Hallucination)") {
		t.Fatalf("expected a decoy row, got %d %q", rec.Code, rec.Body.String())
	}

	opts, err := ParseOptions(multipartRequest(t, "/matches", true, map[string]string{"illusion_heuristics": "on"}))
	if err != nil || !opts.IllusionHeuristics {
		t.Fatalf("option not parsed: %+v %v", opts, err)
	}
}
