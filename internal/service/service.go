// Package service ties the roster store, the roster cache and the redaction
// engine together for the CLI, the HTTP API and the MCP broker.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/gzhole/rostershield/internal/document"
	"github.com/gzhole/rostershield/internal/metrics"
	"github.com/gzhole/rostershield/internal/redact"
	"github.com/gzhole/rostershield/internal/roster"
	"github.com/gzhole/rostershield/internal/rostercache"
	"github.com/gzhole/rostershield/internal/store"
)

var ErrInvalidRoster = errors.New("invalid roster")

type Service struct {
	Store    store.RosterStore
	Cache    *rostercache.Cache
	Contexts rostercache.ContextStore
	Resolver *rostercache.Resolver
}

// New wires a service. Cache options are passed through; a metrics observer
// is always installed.
func New(st store.RosterStore, contexts rostercache.ContextStore, opts ...rostercache.Option) *Service {
	opts = append([]rostercache.Option{rostercache.WithObserver(metrics.ObserveCache)}, opts...)
	cache := rostercache.New(st, opts...)
	return &Service{
		Store:    st,
		Cache:    cache,
		Contexts: contexts,
		Resolver: rostercache.NewResolver(cache, contexts),
	}
}

// SyncResult reports a completed roster sync.
type SyncResult struct {
	OwnerID    string             `json:"owner_id"`
	CourseID   int64              `json:"course_id"`
	Entries    int                `json:"entries"`
	Collisions []roster.Collision `json:"collisions,omitempty"`
}

// SyncRoster validates and upserts a course roster, drops the cached copy and
// makes the course the owner's current context. Entries without an owner or
// course are assigned the given ones.
func (s *Service) SyncRoster(ctx context.Context, ownerID string, courseID int64, entries []roster.Entry) (*SyncResult, error) {
	batch := make([]roster.Entry, len(entries))
	for i, e := range entries {
		if e.OwnerID == "" {
			e.OwnerID = ownerID
		}
		if e.CourseID == 0 {
			e.CourseID = courseID
		}
		batch[i] = e
	}

	if err := roster.ValidateAll(ownerID, courseID, batch); err != nil {
		metrics.RosterSyncs.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
	}
	if err := s.Store.UpsertRoster(ctx, ownerID, courseID, batch); err != nil {
		metrics.RosterSyncs.WithLabelValues("error").Inc()
		return nil, err
	}
	s.Cache.Invalidate(ownerID, courseID)
	if err := s.Contexts.SetCourseContext(ctx, ownerID, courseID); err != nil {
		return nil, err
	}

	metrics.RosterSyncs.WithLabelValues("ok").Inc()
	logger.Info.Printf("Synced %d roster entries for course %d", len(batch), courseID)

	idx, err := s.Cache.GetRoster(ctx, ownerID, courseID)
	if err != nil {
		return nil, err
	}
	return &SyncResult{
		OwnerID:    ownerID,
		CourseID:   courseID,
		Entries:    idx.Len(),
		Collisions: idx.Collisions(),
	}, nil
}

// ClearRoster deletes a stored course roster. If it was the owner's current
// course the context is cleared too.
func (s *Service) ClearRoster(ctx context.Context, ownerID string, courseID int64) (int64, error) {
	n, err := s.Store.ClearRoster(ctx, ownerID, courseID)
	if err != nil {
		return 0, err
	}
	s.Cache.Invalidate(ownerID, courseID)

	current, ok, err := s.Contexts.GetCourseContext(ctx, ownerID)
	if err != nil {
		return n, err
	}
	if ok && current == courseID {
		if err := s.Contexts.ClearCourseContext(ctx, ownerID); err != nil {
			return n, err
		}
	}
	logger.Info.Printf("Cleared %d roster entries for course %d", n, courseID)
	return n, nil
}

// Roster returns the index for the explicit course, or the owner's current
// course when course is nil.
func (s *Service) Roster(ctx context.Context, ownerID string, course *int64) (int64, *roster.Index, error) {
	return s.Resolver.Roster(ctx, ownerID, course)
}

// CourseRoster returns the index for one course without changing the owner's
// current context.
func (s *Service) CourseRoster(ctx context.Context, ownerID string, courseID int64) (*roster.Index, error) {
	return s.Cache.GetRoster(ctx, ownerID, courseID)
}

// Mask masks text against the resolved course roster.
func (s *Service) Mask(ctx context.Context, ownerID string, course *int64, text string) (string, redact.Stats, error) {
	_, idx, err := s.Roster(ctx, ownerID, course)
	if err != nil {
		return "", redact.Stats{}, err
	}
	out, st := redact.MaskWithStats(text, idx)
	metrics.ObserveStats(document.Egress.String(), st)
	return out, st, nil
}

// Unmask restores tokens in text against the resolved course roster.
func (s *Service) Unmask(ctx context.Context, ownerID string, course *int64, text string) (string, redact.Stats, error) {
	_, idx, err := s.Roster(ctx, ownerID, course)
	if err != nil {
		return "", redact.Stats{}, err
	}
	out, st := redact.UnmaskWithStats(text, idx)
	metrics.ObserveStats(document.Ingress.String(), st)
	return out, st, nil
}

// TransformValue masks or unmasks a decoded JSON value, embedded files
// included.
func (s *Service) TransformValue(ctx context.Context, ownerID string, course *int64, v any, dir document.Direction) (any, redact.Stats, error) {
	_, idx, err := s.Roster(ctx, ownerID, course)
	if err != nil {
		return nil, redact.Stats{}, err
	}
	out, st, err := document.RedactTree(v, idx, dir)
	if err != nil {
		return nil, st, err
	}
	metrics.ObserveStats(dir.String(), st)
	return out, st, nil
}

// MaskValue is TransformValue toward the language model.
func (s *Service) MaskValue(ctx context.Context, ownerID string, course *int64, v any) (any, redact.Stats, error) {
	return s.TransformValue(ctx, ownerID, course, v, document.Egress)
}

// UnmaskValue is TransformValue toward the LMS.
func (s *Service) UnmaskValue(ctx context.Context, ownerID string, course *int64, v any) (any, redact.Stats, error) {
	return s.TransformValue(ctx, ownerID, course, v, document.Ingress)
}

// RedactFile runs the document adapter against the resolved course roster.
func (s *Service) RedactFile(ctx context.Context, ownerID string, course *int64, data []byte, filename string, dir document.Direction) ([]byte, redact.Stats, error) {
	_, idx, err := s.Roster(ctx, ownerID, course)
	if err != nil {
		return nil, redact.Stats{}, err
	}

	format := document.Kind(filename)
	out, st, err := document.RedactFileWithStats(data, filename, idx, dir)
	if err != nil {
		metrics.FileRedactions.WithLabelValues(dir.String(), format, "error").Inc()
		return nil, st, err
	}
	metrics.FileRedactions.WithLabelValues(dir.String(), format, "ok").Inc()
	metrics.ObserveStats(dir.String(), st)
	return out, st, nil
}
