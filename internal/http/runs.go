package http

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"paxth/internal/model"
	"paxth/internal/pipeline"
)

var errRunNotFound = errors.New("run not found")

// defaultRunLimit bounds how many runs the registry keeps in memory. The
// oldest run is evicted first; persisted runs stay reachable via the store.
const defaultRunLimit = 200

// runRecord is the server-side state of one extraction run.
type runRecord struct {
	ID        uuid.UUID
	Product   model.Product
	Result    *pipeline.Result
	Matrix    model.AttributeExtractionMatrix
	Final     model.FinalValueMap
	Log       []string
	Error     string
	CreatedAt time.Time
}

// runRegistry holds recent runs keyed by id.
type runRegistry struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*runRecord
	order []uuid.UUID
	limit int
}

func newRunRegistry(limit int) *runRegistry {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	return &runRegistry{runs: make(map[uuid.UUID]*runRecord), limit: limit}
}

func (r *runRegistry) put(rec *runRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[rec.ID]; !ok {
		r.order = append(r.order, rec.ID)
	}
	r.runs[rec.ID] = rec
	for len(r.order) > r.limit {
		delete(r.runs, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *runRegistry) get(id uuid.UUID) (*runRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.runs[id]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// update applies fn to the stored record under the write lock. fn's error
// leaves the record unchanged.
func (r *runRegistry) update(id uuid.UUID, fn func(rec *runRecord) error) (*runRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[id]
	if !ok {
		return nil, errRunNotFound
	}
	cp := *rec
	if err := fn(&cp); err != nil {
		return nil, err
	}
	r.runs[id] = &cp
	out := cp
	return &out, nil
}

// list returns summaries, newest first.
func (r *runRegistry) list() []RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RunSummary, 0, len(r.runs))
	for _, rec := range r.runs {
		out = append(out, RunSummary{
			ID:        rec.ID.String(),
			Category:  rec.Product.Category,
			SKU:       rec.Product.SKU,
			CreatedAt: rec.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
