// Package collect is the surface the presentation layer calls: submit a
// filled-in survey, read the cached survey set, and sign out. Reads
// degrade to empty results when the store misbehaves so the UI can
// always render; the one exception is SubmitResponse, whose failure
// must reach the caller.
package collect

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/fieldsync/internal/store"
)

// Notifier lets the facade poke the orchestrator's pending-count cache
// after a new response lands.
type Notifier interface {
	RefreshPendingCount() int
}

// Service wraps the local store for presentation-layer use.
type Service struct {
	store    *store.Store
	notifier Notifier // optional
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. notifier may be nil.
func NewService(st *store.Store, notifier Notifier) *Service {
	return &Service{
		store:    st,
		notifier: notifier,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// SubmitResponse persists a filled-in survey locally with synced=false.
// It never touches the network and succeeds offline; a persistence
// failure is returned because a silently dropped response is lost field
// data.
func (s *Service) SubmitResponse(surveyID string, answers map[string]any, completionMinutes int) (store.Response, error) {
	if surveyID == "" {
		return store.Response{}, errors.New("survey id is required")
	}

	now := s.now().UTC()
	resp := store.Response{
		ID:             newResponseID(now),
		SurveyID:       surveyID,
		Answers:        answers,
		CompletionTime: completionMinutes,
		CreatedAt:      now,
	}

	if err := s.store.AddResponse(resp); err != nil {
		return store.Response{}, fmt.Errorf("saving response: %w", err)
	}

	if s.notifier != nil {
		s.notifier.RefreshPendingCount()
	}
	return resp, nil
}

// newResponseID builds a locally unique id from the creation time plus
// a random suffix: ids stay roughly time-ordered and collision-safe
// across devices, and double as the server-side idempotency key.
func newResponseID(t time.Time) string {
	return fmt.Sprintf("%d-%s", t.UnixMilli(), uuid.NewString()[:8])
}

// Surveys returns the cached survey list. Storage problems degrade to
// an empty list.
func (s *Service) Surveys() []store.Survey {
	surveys, err := s.store.Surveys()
	if err != nil {
		s.logger.Warn("reading cached surveys failed", "error", err)
		return nil
	}
	return surveys
}

// Survey returns the cached survey with the given id. Missing ids and
// storage problems both report false.
func (s *Service) Survey(id string) (store.Survey, bool) {
	sv, err := s.store.Survey(id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Survey{}, false
	}
	if err != nil {
		s.logger.Warn("reading cached survey failed", "survey_id", id, "error", err)
		return store.Survey{}, false
	}
	return sv, true
}

// PendingCount returns the number of unsynced responses, or zero when
// the store cannot answer.
func (s *Service) PendingCount() int {
	n, err := s.store.PendingCount()
	if err != nil {
		s.logger.Warn("reading pending count failed", "error", err)
		return 0
	}
	return n
}

// LastSync returns the latest sync record; false when no sync has
// completed yet or the store cannot answer.
func (s *Service) LastSync() (store.SyncRecord, bool) {
	rec, err := s.store.LastSync()
	if errors.Is(err, store.ErrNotFound) {
		return store.SyncRecord{}, false
	}
	if err != nil {
		s.logger.Warn("reading last sync failed", "error", err)
		return store.SyncRecord{}, false
	}
	return rec, true
}

// Logout wipes all locally held data: cached surveys, responses
// (synced or not), and the sync log.
func (s *Service) Logout() error {
	if err := s.store.ClearAll(); err != nil {
		return fmt.Errorf("wiping local data: %w", err)
	}
	if s.notifier != nil {
		s.notifier.RefreshPendingCount()
	}
	return nil
}
