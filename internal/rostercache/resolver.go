package rostercache

import (
	"context"
	"errors"
	"fmt"

	"github.com/gzhole/rostershield/internal/roster"
)

// ErrNoCourse is returned when a call names no course and none is remembered.
var ErrNoCourse = errors.New("no course given and no course context set")

// Resolver picks the course a call applies to and loads its roster.
type Resolver struct {
	Cache    *Cache
	Contexts ContextStore
}

func NewResolver(cache *Cache, contexts ContextStore) *Resolver {
	return &Resolver{Cache: cache, Contexts: contexts}
}

// Resolve returns the course for a call. An explicit course becomes the
// owner's new context; otherwise the stored context is used.
func (r *Resolver) Resolve(ctx context.Context, ownerID string, explicit *int64) (int64, error) {
	if explicit != nil {
		if err := r.Contexts.SetCourseContext(ctx, ownerID, *explicit); err != nil {
			return 0, err
		}
		return *explicit, nil
	}
	id, ok, err := r.Contexts.GetCourseContext(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoCourse
	}
	return id, nil
}

// Roster resolves the course and returns its cached roster index.
func (r *Resolver) Roster(ctx context.Context, ownerID string, explicit *int64) (int64, *roster.Index, error) {
	courseID, err := r.Resolve(ctx, ownerID, explicit)
	if err != nil {
		return 0, nil, err
	}
	idx, err := r.Cache.GetRoster(ctx, ownerID, courseID)
	if err != nil {
		return courseID, nil, fmt.Errorf("load roster: %w", err)
	}
	return courseID, idx, nil
}
