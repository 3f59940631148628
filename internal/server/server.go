package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"sc2builds/internal/buildorder"
	"sc2builds/internal/db"
	"sc2builds/internal/logging"
	"sc2builds/internal/processor"
)

const defaultMaxUploadBytes = 32 << 20

// Decoder turns uploaded replay bytes into engine input.
type Decoder interface {
	Decode(id uuid.UUID, data []byte) (*buildorder.Match, error)
}

// Builder runs the reconstruction.
type Builder interface {
	Build(m *buildorder.Match, opts buildorder.Options) (*buildorder.BuildOrder, error)
}

// ReplaySaver stores uploaded replays for asynchronous processing.
type ReplaySaver interface {
	SaveReplay(ctx context.Context, id uuid.UUID, filename string, data []byte) error
}

// Enqueuer submits jobs to the worker queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte) error
}

// LineReader reads stored build orders.
type LineReader interface {
	GetLines(ctx context.Context, matchID uuid.UUID, player string) ([]string, error)
}

// Config for the HTTP API handler. Replays, Queue and Lines are optional; the
// /matches routes are only mounted when they are set.
type Config struct {
	Decoder        Decoder
	Builder        Builder
	Replays        ReplaySaver
	Queue          Enqueuer
	Lines          LineReader
	MaxUploadBytes int64
	// AllowedOrigins lists the browser origins allowed to call the API.
	// Empty allows any origin.
	AllowedOrigins []string
	Logger         logging.Interface
}

type api struct {
	cfg    Config
	logger logging.Interface
}

// PlayerInfo is one roster row of the /players response.
type PlayerInfo struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
	Race string `json:"race"`
}

// PlayersResponse is the /players response body.
type PlayersResponse struct {
	Players []PlayerInfo `json:"players"`
	Matchup *string      `json:"matchup"`
}

// New returns an HTTP handler exposing the build-order API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Decoder == nil || cfg.Builder == nil {
		return nil, errors.New("server: decoder and builder are required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Logger()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	a := &api{cfg: cfg, logger: cfg.Logger}

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(a.requestLog)

	router.Get("/", a.health)
	router.Post("/players", a.players)
	router.Post("/upload", a.upload)
	if cfg.Replays != nil && cfg.Queue != nil {
		router.Post("/matches", a.submitMatch)
	}
	if cfg.Lines != nil {
		router.Get("/matches/{id}/build-order", a.storedBuildOrder)
	}

	return router, nil
}

func (a *api) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Infof("%s %s -> %d in %v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "SC2 replay parser running")
}

func (a *api) players(w http.ResponseWriter, r *http.Request) {
	_, data, ok := a.readReplay(w, r)
	if !ok {
		return
	}
	match, err := a.cfg.Decoder.Decode(uuid.New(), data)
	if err != nil {
		writeText(w, http.StatusBadRequest, fmt.Sprintf("Failed to load replay: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, Roster(match.Participants))
}

// Roster lists the active participants and the matchup of the first two.
func Roster(participants []buildorder.Participant) PlayersResponse {
	resp := PlayersResponse{Players: []PlayerInfo{}}
	for _, p := range participants {
		if p.Observer {
			continue
		}
		resp.Players = append(resp.Players, PlayerInfo{PID: p.ID, Name: p.Name, Race: p.Faction})
	}
	if len(resp.Players) >= 2 {
		m := raceInitial(resp.Players[0].Race) + "v" + raceInitial(resp.Players[1].Race)
		resp.Matchup = &m
	}
	return resp
}

func raceInitial(race string) string {
	if race == "" {
		return "?"
	}
	return strings.ToLower(race[:1])
}

func (a *api) upload(w http.ResponseWriter, r *http.Request) {
	_, data, ok := a.readReplay(w, r)
	if !ok {
		return
	}
	opts, err := ParseOptions(r)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	match, err := a.cfg.Decoder.Decode(uuid.New(), data)
	if err != nil {
		writeText(w, http.StatusBadRequest, fmt.Sprintf("Failed to load replay: %v", err))
		return
	}
	bo, err := a.cfg.Builder.Build(match, opts)
	if errors.Is(err, buildorder.ErrNoParticipants) {
		writeText(w, http.StatusBadRequest, "No active players")
		return
	}
	if err != nil {
		a.logger.Errorf("build order for upload: %v", err)
		writeText(w, http.StatusInternalServerError, "Failed to build order")
		return
	}
	writeText(w, http.StatusOK, strings.Join(bo.Lines, "\n"))
}

func (a *api) submitMatch(w http.ResponseWriter, r *http.Request) {
	filename, data, ok := a.readReplay(w, r)
	if !ok {
		return
	}
	opts, err := ParseOptions(r)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	id := uuid.New()
	if err := a.cfg.Replays.SaveReplay(r.Context(), id, filename, data); err != nil {
		a.logger.Errorf("store replay: %v", err)
		writeText(w, http.StatusInternalServerError, "Failed to store replay")
		return
	}
	payload, err := processor.NewJobPayload(id, opts)
	if err != nil {
		writeText(w, http.StatusInternalServerError, "Failed to encode job")
		return
	}
	if err := a.cfg.Queue.Enqueue(r.Context(), payload); err != nil {
		a.logger.Errorf("enqueue match %s: %v", id, err)
		writeText(w, http.StatusServiceUnavailable, "Failed to queue replay")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"match_id": id.String()})
}

func (a *api) storedBuildOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "invalid match id")
		return
	}
	lines, err := a.cfg.Lines.GetLines(r.Context(), id, r.URL.Query().Get("player"))
	if errors.Is(err, db.ErrBuildOrderNotFound) {
		writeText(w, http.StatusNotFound, "build order not found")
		return
	}
	if err != nil {
		a.logger.Errorf("read build order %s: %v", id, err)
		writeText(w, http.StatusInternalServerError, "Failed to read build order")
		return
	}
	writeText(w, http.StatusOK, strings.Join(lines, "\n"))
}

// readReplay pulls the "replay" multipart file. It writes the 400 response
// itself and reports false when the upload is missing.
func (a *api) readReplay(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes)
	f, header, err := r.FormFile("replay")
	if err != nil || header.Filename == "" {
		writeText(w, http.StatusBadRequest, "No replay uploaded")
		return "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeText(w, http.StatusBadRequest, fmt.Sprintf("Failed to read replay: %v", err))
		return "", nil, false
	}
	return header.Filename, data, true
}

// ParseOptions reads engine options from request form values. Booleans
// accept 1/true/yes/on; stop_time is in minutes.
func ParseOptions(r *http.Request) (buildorder.Options, error) {
	opts := buildorder.Options{
		Player:             r.FormValue("player"),
		ExcludeWorkers:     Truthy(r.FormValue("exclude_workers")),
		ExcludeUnits:       Truthy(r.FormValue("exclude_units")),
		ExcludeSupply:      Truthy(r.FormValue("exclude_supply")),
		ExcludeTime:        Truthy(r.FormValue("exclude_time")),
		Compact:            Truthy(r.FormValue("compact")),
		IllusionHeuristics: Truthy(r.FormValue("illusion_heuristics")),
	}
	var err error
	if opts.StopSupply, err = formInt(r, "stop_supply"); err != nil {
		return opts, err
	}
	if opts.StopTime, err = formInt(r, "stop_time"); err != nil {
		return opts, err
	}
	return opts, nil
}

// Truthy parses a loose boolean flag.
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func formInt(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
