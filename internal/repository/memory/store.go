// Package memory provides process-local repository implementations used when
// no database is configured and as fakes in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/repository"
)

// Store holds every collection behind a single lock.
type Store struct {
	mu         sync.RWMutex
	tickets    map[string]domain.Ticket
	logs       []domain.ActivityLog
	users      map[string]domain.User
	categories map[string]domain.Category
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		tickets:    make(map[string]domain.Ticket),
		users:      make(map[string]domain.User),
		categories: make(map[string]domain.Category),
	}
}

// Tickets exposes the ticket collection.
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

// ActivityLogs exposes the activity log collection.
func (s *Store) ActivityLogs() repository.ActivityLogRepository { return activityLogRepo{s} }

// Users exposes the user collection.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

// Categories exposes the category collection.
func (s *Store) Categories() repository.CategoryRepository { return categoryRepo{s} }

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[ticket.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ticket, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneTicket(ticket)
	return &out, nil
}

func (r ticketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	matched := make([]domain.Ticket, 0, len(r.s.tickets))
	for _, ticket := range r.s.tickets {
		if matchTicket(ticket, filter) {
			matched = append(matched, cloneTicket(ticket))
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []domain.Ticket{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r ticketRepo) Count(_ context.Context, filter repository.TicketFilter) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, ticket := range r.s.tickets {
		if matchTicket(ticket, filter) {
			count++
		}
	}
	return count, nil
}

func matchTicket(t domain.Ticket, f repository.TicketFilter) bool {
	if f.CreatedByID != nil && t.CreatedByID != *f.CreatedByID {
		return false
	}
	if f.AssigneeID != nil {
		switch {
		case t.AssigneeID == nil:
			if !f.IncludeUnassigned {
				return false
			}
		case *t.AssigneeID != *f.AssigneeID:
			return false
		}
	}
	if f.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *f.CategoryID) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.UpdatedFrom != nil && t.UpdatedAt.Before(*f.UpdatedFrom) {
		return false
	}
	if f.UpdatedTo != nil && t.UpdatedAt.After(*f.UpdatedTo) {
		return false
	}
	return true
}

func containsStatus(list []domain.TicketStatus, v domain.TicketStatus) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, v domain.TicketPriority) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.AssigneeID != nil {
		v := *t.AssigneeID
		t.AssigneeID = &v
	}
	if t.CategoryID != nil {
		v := *t.CategoryID
		t.CategoryID = &v
	}
	return t
}

type activityLogRepo struct{ s *Store }

func (r activityLogRepo) Create(_ context.Context, entry *domain.ActivityLog) error {
	if entry.Action == domain.ActionSLAEscalated {
		return repository.ErrReservedAction
	}
	repository.PrepareActivityLog(entry)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.logs = append(r.s.logs, cloneLog(*entry))
	return nil
}

func (r activityLogRepo) CreateOnce(_ context.Context, entry *domain.ActivityLog) (bool, error) {
	repository.PrepareActivityLog(entry)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.logs {
		if existing.TicketID == entry.TicketID && existing.Action == entry.Action {
			return false, nil
		}
	}
	r.s.logs = append(r.s.logs, cloneLog(*entry))
	return true, nil
}

func (r activityLogRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityLog, error) {
	return r.List(ctx, repository.ActivityLogFilter{TicketID: &ticketID})
}

func (r activityLogRepo) List(_ context.Context, filter repository.ActivityLogFilter) ([]domain.ActivityLog, error) {
	r.s.mu.RLock()
	result := make([]domain.ActivityLog, 0)
	for _, entry := range r.s.logs {
		if matchLog(entry, filter) {
			result = append(result, cloneLog(entry))
		}
	}
	r.s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID < result[j].ID
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (r activityLogRepo) Count(_ context.Context, filter repository.ActivityLogFilter) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, entry := range r.s.logs {
		if matchLog(entry, filter) {
			count++
		}
	}
	return count, nil
}

func (r activityLogRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.logs[:0]
	var removed int64
	for _, entry := range r.s.logs {
		if entry.Timestamp.Before(cutoff) && entry.Action != domain.ActionSLAEscalated {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	r.s.logs = kept
	return removed, nil
}

func matchLog(entry domain.ActivityLog, f repository.ActivityLogFilter) bool {
	if f.TicketID != nil && entry.TicketID != *f.TicketID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, action := range f.Actions {
			if entry.Action == action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && entry.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && entry.Timestamp.After(*f.To) {
		return false
	}
	return true
}

func cloneLog(entry domain.ActivityLog) domain.ActivityLog {
	if entry.UserID != nil {
		v := *entry.UserID
		entry.UserID = &v
	}
	return entry
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return repository.ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id })
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return email != "" && u.Email == email })
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == username })
}

func (r userRepo) find(match func(domain.User) bool) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, user := range r.s.users {
		if match(user) {
			out := user
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) ListByRole(_ context.Context, roles ...domain.UserRole) ([]domain.User, error) {
	r.s.mu.RLock()
	result := make([]domain.User, 0, len(r.s.users))
	for _, user := range r.s.users {
		if len(roles) == 0 || containsRole(roles, user.Role) {
			result = append(result, user)
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (r userRepo) UpdateRole(_ context.Context, id string, role domain.UserRole) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Role = role
	r.s.users[id] = user
	return nil
}

func containsRole(list []domain.UserRole, v domain.UserRole) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type categoryRepo struct{ s *Store }

func (r categoryRepo) Create(_ context.Context, category *domain.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.categories {
		if existing.Name == category.Name {
			return repository.ErrDuplicate
		}
	}
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	r.s.categories[category.ID] = *category
	return nil
}

func (r categoryRepo) GetByID(_ context.Context, id string) (*domain.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	category, ok := r.s.categories[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &category, nil
}

func (r categoryRepo) GetByName(_ context.Context, name string) (*domain.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, category := range r.s.categories {
		if category.Name == name {
			out := category
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r categoryRepo) List(_ context.Context) ([]domain.Category, error) {
	r.s.mu.RLock()
	result := make([]domain.Category, 0, len(r.s.categories))
	for _, category := range r.s.categories {
		result = append(result, category)
	}
	r.s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
