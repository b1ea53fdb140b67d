package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	// CreateIfAbsent stores a lead and its details unless a lead with the same
	// phone number exists, in which case that lead's id is returned with
	// created=false and nothing is written. Reserved keys in extra are never
	// stored.
	CreateIfAbsent(ctx context.Context, fields Fields, extra ExtraFields) (id string, created bool, err error)
	FetchWithDetails(ctx context.Context, id string) (LeadView, error)
	List(ctx context.Context, filter ListFilter) ([]Lead, error)
	MarkSent(ctx context.Context, id string) error
	MarkVerified(ctx context.Context, id string) error
}

// InMemoryRepository is a Repository kept in process memory, used for local
// runs without a database and in tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	leads   map[string]*Lead
	details map[string]ExtraFields
	byPhone map[string]string
	now     func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:   make(map[string]*Lead),
		details: make(map[string]ExtraFields),
		byPhone: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateIfAbsent checks and inserts under one lock, so concurrent submissions
// for the same phone number resolve to a single lead.
func (r *InMemoryRepository) CreateIfAbsent(ctx context.Context, fields Fields, extra ExtraFields) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, persistence("create lead", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPhone[fields.PhoneNumber]; ok {
		return id, false, nil
	}

	now := r.now()
	lead := &Lead{
		ID:          uuid.New().String(),
		FormType:    fields.FormType,
		SourceURL:   fields.SourceURL,
		IP:          fields.IP,
		Name:        fields.Name,
		PhoneNumber: fields.PhoneNumber,
		Email:       fields.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.leads[lead.ID] = lead
	r.details[lead.ID] = extra.Storable()
	r.byPhone[lead.PhoneNumber] = lead.ID
	return lead.ID, true, nil
}

// FetchWithDetails returns the lead merged with its details.
func (r *InMemoryRepository) FetchWithDetails(ctx context.Context, id string) (LeadView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return NewView(lead, r.details[id]), nil
}

// List returns leads newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]Lead, error) {
	r.mu.RLock()
	out := make([]Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		out = append(out, *lead)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Lead{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// MarkSent flags the lead as delivered to the CRM webhook.
func (r *InMemoryRepository) MarkSent(ctx context.Context, id string) error {
	return r.update(id, func(l *Lead) { l.IsSent = true })
}

// MarkVerified flags the lead as channel verified.
func (r *InMemoryRepository) MarkVerified(ctx context.Context, id string) error {
	return r.update(id, func(l *Lead) { l.IsVerified = true })
}

func (r *InMemoryRepository) update(id string, fn func(*Lead)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	fn(lead)
	lead.UpdatedAt = r.now()
	return nil
}

// DetailCount returns the number of detail rows stored for id.
func (r *InMemoryRepository) DetailCount(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.details[id])
}

// Len returns the number of stored leads.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.leads)
}
