package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sc2builds/internal/buildorder"
	"sc2builds/internal/db"
	"sc2builds/internal/logging"
)

// JobPayload represents the incoming job from the Redis queue.
type JobPayload struct {
	MatchID string             `json:"match_id"`
	Options buildorder.Options `json:"options"`
}

// NewJobPayload encodes a job for the given match.
func NewJobPayload(matchID uuid.UUID, opts buildorder.Options) ([]byte, error) {
	return json.Marshal(JobPayload{MatchID: matchID.String(), Options: opts})
}

// ReplayLoader fetches stored replay bytes.
type ReplayLoader interface {
	GetReplay(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// MatchDecoder turns replay bytes into engine input.
type MatchDecoder interface {
	Decode(id uuid.UUID, data []byte) (*buildorder.Match, error)
}

// Builder runs the reconstruction.
type Builder interface {
	Build(m *buildorder.Match, opts buildorder.Options) (*buildorder.BuildOrder, error)
}

// BuildOrderStore persists a finished build order.
type BuildOrderStore interface {
	WriteBuildOrder(ctx context.Context, bo *buildorder.BuildOrder, opts buildorder.Options) error
}

// BuildOrderProcessor handles build-order reconstruction jobs.
type BuildOrderProcessor struct {
	loader  ReplayLoader
	decoder MatchDecoder
	builder Builder
	store   BuildOrderStore
	logger  logging.Interface
}

// NewBuildOrderProcessor creates a new build-order processor.
func NewBuildOrderProcessor(loader ReplayLoader, decoder MatchDecoder, builder Builder, store BuildOrderStore) *BuildOrderProcessor {
	return &BuildOrderProcessor{
		loader:  loader,
		decoder: decoder,
		builder: builder,
		store:   store,
		logger:  logging.Logger(),
	}
}

// Handle processes a single build-order job from the queue. Jobs that can
// never succeed (unknown match, no active players) are logged and dropped;
// every other failure is returned so the queue retries it.
func (p *BuildOrderProcessor) Handle(ctx context.Context, payload []byte) error {
	startTime := time.Now()

	var job JobPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("unmarshal job payload: %w", err)
	}

	matchID, err := uuid.Parse(job.MatchID)
	if err != nil {
		return fmt.Errorf("parse match_id: %w", err)
	}

	p.logger.Infof("processing build-order job for match %s", matchID)

	data, err := p.loader.GetReplay(ctx, matchID)
	if errors.Is(err, db.ErrReplayNotFound) {
		p.logger.Warnf("match %s not found, skipping", matchID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load replay: %w", err)
	}

	match, err := p.decoder.Decode(matchID, data)
	if err != nil {
		return fmt.Errorf("decode replay: %w", err)
	}

	p.logger.Infof("decoded match %s: %d participants, %d events",
		matchID, len(match.Participants), len(match.Events))

	bo, err := p.builder.Build(match, job.Options)
	if errors.Is(err, buildorder.ErrNoParticipants) {
		p.logger.Warnf("match %s has no active players, skipping", matchID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("build order: %w", err)
	}

	for _, a := range bo.Anomalies {
		p.logger.Debugf("match %s: %v", matchID, a)
	}

	if err := p.store.WriteBuildOrder(ctx, bo, job.Options); err != nil {
		return fmt.Errorf("write build order: %w", err)
	}

	p.logger.Infof("build-order job completed for match %s (player %s, %d lines, %d anomalies) in %v",
		matchID, bo.Player.Name, len(bo.Lines), len(bo.Anomalies), time.Since(startTime))

	return nil
}
