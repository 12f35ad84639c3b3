// Package persistence implements the run-replay store: one row per
// completed run, holding its goal and transcript as a JSON blob, so a
// past run can be reloaded and inspected with `reactorctl replay`. This
// is additive to the plain-text final results file spec.md describes
// (see results_file.go), which the Controller still writes on every
// successful completion; the store only gives an operator a second,
// queryable way to get the same history back, and also covers runs that
// didn't finish (turn exhaustion, fatal error) that the text file
// doesn't.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/reactorctl/reactor/internal/domain/entity"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// runModel is the GORM row for a single completed (or aborted) run.
type runModel struct {
	ID               string `gorm:"primaryKey"`
	GoalDescription  string
	ConstraintsJSON  string
	TranscriptJSON   string
	MaxTurns         int
	Success          bool
	IsComplete       bool
	CompletionReason string
	Summary          string
	Error            string
	StartTime        time.Time
	EndTime          time.Time
}

func (runModel) TableName() string { return "runs" }

// ReplayStore persists completed runs to a SQLite database.
type ReplayStore struct {
	db *gorm.DB
}

// NewReplayStore opens (creating if needed) a SQLite database at dsn and
// migrates the runs table.
func NewReplayStore(dsn string) (*ReplayStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open replay store: %w", err)
	}
	if err := db.AutoMigrate(&runModel{}); err != nil {
		return nil, fmt.Errorf("migrate replay store: %w", err)
	}
	return &ReplayStore{db: db}, nil
}

// SaveRun persists a completed run's full state. Called once per run,
// after ExecuteGoal returns — never mid-run.
func (s *ReplayStore) SaveRun(ctx context.Context, result *entity.RunResult) error {
	if result.State == nil {
		return errors.New("cannot persist a run with no state")
	}
	goal := result.State.Goal()

	constraintsJSON, err := json.Marshal(goal.Constraints())
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}
	transcriptJSON, err := json.Marshal(result.State.Transcript())
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	row := runModel{
		ID:               goal.ID(),
		GoalDescription:  goal.Description(),
		ConstraintsJSON:  string(constraintsJSON),
		TranscriptJSON:   string(transcriptJSON),
		MaxTurns:         result.State.MaxTurns(),
		Success:          result.Success,
		IsComplete:       result.State.IsComplete(),
		CompletionReason: result.State.CompletionReason(),
		Summary:          result.Summary,
		Error:            result.Error,
		StartTime:        result.State.StartTime(),
		EndTime:          result.State.EndTime(),
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save run %s: %w", row.ID, err)
	}
	return nil
}

// LoadRun reconstructs a RunResult for a previously persisted run.
func (s *ReplayStore) LoadRun(ctx context.Context, runID string) (*entity.RunResult, error) {
	var row runModel
	if err := s.db.WithContext(ctx).First(&row, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	var constraints map[string]interface{}
	if err := json.Unmarshal([]byte(row.ConstraintsJSON), &constraints); err != nil {
		return nil, fmt.Errorf("decode constraints for run %s: %w", runID, err)
	}
	var transcript []entity.TurnRecord
	if err := json.Unmarshal([]byte(row.TranscriptJSON), &transcript); err != nil {
		return nil, fmt.Errorf("decode transcript for run %s: %w", runID, err)
	}

	goal, err := entity.ReconstructGoal(row.ID, row.GoalDescription, constraints)
	if err != nil {
		return nil, fmt.Errorf("reconstruct goal for run %s: %w", runID, err)
	}
	state := entity.ReconstructAgentState(goal, transcript, row.MaxTurns, row.IsComplete, row.CompletionReason, row.StartTime, row.EndTime)

	return &entity.RunResult{Success: row.Success, State: state, Summary: row.Summary, Error: row.Error}, nil
}

// ListRuns returns the IDs of every persisted run, most recent first.
func (s *ReplayStore) ListRuns(ctx context.Context) ([]string, error) {
	var rows []runModel
	if err := s.db.WithContext(ctx).Order("start_time desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// Close releases the underlying database connection.
func (s *ReplayStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
