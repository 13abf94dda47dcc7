package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/repository"
)

func strPtr(s string) *string { return &s }

func TestTicketFilterScopes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Tickets().Create(ctx, &domain.Ticket{ID: "t1", CreatedByID: "u1", Status: domain.TicketStatusOpen, CreatedAt: base}))
	require.NoError(t, store.Tickets().Create(ctx, &domain.Ticket{ID: "t2", CreatedByID: "u2", AssigneeID: strPtr("tech"), Status: domain.TicketStatusResolved, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, store.Tickets().Create(ctx, &domain.Ticket{ID: "t3", CreatedByID: "u2", AssigneeID: strPtr("other"), Status: domain.TicketStatusOpen, CreatedAt: base.Add(2 * time.Hour)}))

	own, err := store.Tickets().ListWithFilter(ctx, repository.TicketFilter{CreatedByID: strPtr("u2")})
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, "t3", own[0].ID, "newest first")

	tech, err := store.Tickets().ListWithFilter(ctx, repository.TicketFilter{AssigneeID: strPtr("tech"), IncludeUnassigned: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, ticketIDs(tech))

	assigned, err := store.Tickets().ListWithFilter(ctx, repository.TicketFilter{AssigneeID: strPtr("tech")})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ticketIDs(assigned))

	count, err := store.Tickets().Count(ctx, repository.TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusOpen}})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	from := base.Add(30 * time.Minute)
	limited, err := store.Tickets().ListWithFilter(ctx, repository.TicketFilter{CreatedFrom: &from, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"t3"}, ticketIDs(limited))
}

func TestTicketReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ticket := &domain.Ticket{ID: "t1", AssigneeID: strPtr("a")}
	require.NoError(t, store.Tickets().Create(ctx, ticket))

	*ticket.AssigneeID = "changed"
	got, err := store.Tickets().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "a", *got.AssigneeID)

	_, err = store.Tickets().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, store.Tickets().Update(ctx, &domain.Ticket{ID: "missing"}), repository.ErrNotFound)
}

func TestActivityLogCreateRejectsReservedAction(t *testing.T) {
	store := NewStore()
	err := store.ActivityLogs().Create(context.Background(), &domain.ActivityLog{TicketID: "t1", Action: domain.ActionSLAEscalated})
	assert.ErrorIs(t, err, repository.ErrReservedAction)
}

func TestActivityLogCreateOnceIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	logs := store.ActivityLogs()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := logs.CreateOnce(ctx, &domain.ActivityLog{TicketID: "t1", Action: domain.ActionSLAEscalated})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	count, err := logs.Count(ctx, repository.ActivityLogFilter{Actions: []string{domain.ActionSLAEscalated}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestActivityLogListAndPurge(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	logs := store.ActivityLogs()
	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, logs.Create(ctx, &domain.ActivityLog{TicketID: "t1", Action: domain.ActionCreated, Timestamp: recent}))
	require.NoError(t, logs.Create(ctx, &domain.ActivityLog{TicketID: "t1", Action: domain.ActionStatusChanged, Timestamp: old}))
	require.NoError(t, logs.Create(ctx, &domain.ActivityLog{TicketID: "t2", Action: domain.ActionCreated, Timestamp: recent}))
	_, err := logs.CreateOnce(ctx, &domain.ActivityLog{TicketID: "t3", Action: domain.ActionSLAEscalated, Timestamp: old})
	require.NoError(t, err)

	entries, err := logs.ListByTicket(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ActionStatusChanged, entries[0].Action, "oldest first")
	assert.NotEmpty(t, entries[0].ID)

	removed, err := logs.DeleteBefore(ctx, recent.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	total, err := logs.Count(ctx, repository.ActivityLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total, "escalation entries survive the purge")
}

func TestUsersByRoleAndDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	users := store.Users()

	require.NoError(t, users.Create(ctx, &domain.User{Username: "zed", Role: domain.UserRoleAdmin, Email: "z@example.com"}))
	require.NoError(t, users.Create(ctx, &domain.User{Username: "amy", Role: domain.UserRoleAdmin}))
	require.NoError(t, users.Create(ctx, &domain.User{Username: "bo", Role: domain.UserRoleUser}))
	assert.ErrorIs(t, users.Create(ctx, &domain.User{Username: "bo"}), repository.ErrDuplicate)

	admins, err := users.ListByRole(ctx, domain.UserRoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "amy", admins[0].Username)

	all, err := users.ListByRole(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byEmail, err := users.GetByEmail(ctx, "z@example.com")
	require.NoError(t, err)
	assert.Equal(t, "zed", byEmail.Username)

	_, err = users.GetByEmail(ctx, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	cats := store.Categories()

	require.NoError(t, cats.Create(ctx, &domain.Category{Name: "Software"}))
	require.NoError(t, cats.Create(ctx, &domain.Category{Name: "Hardware"}))
	assert.ErrorIs(t, cats.Create(ctx, &domain.Category{Name: "Hardware"}), repository.ErrDuplicate)

	list, err := cats.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Hardware", list[0].Name)

	got, err := cats.GetByName(ctx, "Software")
	require.NoError(t, err)
	byID, err := cats.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "Software", byID.Name)
}

func ticketIDs(tickets []domain.Ticket) []string {
	out := make([]string, len(tickets))
	for i, t := range tickets {
		out[i] = t.ID
	}
	return out
}

func TestUserUpdateRole(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	u := &domain.User{Username: "pat", Role: domain.UserRoleUser}
	require.NoError(t, store.Users().Create(ctx, u))

	require.NoError(t, store.Users().UpdateRole(ctx, u.ID, domain.UserRoleTechnician))
	got, err := store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleTechnician, got.Role)

	assert.ErrorIs(t, store.Users().UpdateRole(ctx, "nobody", domain.UserRoleAdmin), repository.ErrNotFound)
}
