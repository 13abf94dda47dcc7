package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/medsupport/helpdesk/internal/domain"
)

func TestTranslateUniqueViolation(t *testing.T) {
	err := translate(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "users_username_key")
}

func TestTranslatePassesOtherErrors(t *testing.T) {
	other := errors.New("boom")
	assert.Same(t, other, translate(other))
	assert.Nil(t, translate(nil))
}

func TestTicketWhereBuildsPlaceholdersInOrder(t *testing.T) {
	creator := "u-1"
	assignee := "t-1"
	where, args := ticketWhere(TicketFilter{
		CreatedByID:       &creator,
		AssigneeID:        &assignee,
		IncludeUnassigned: true,
		Statuses:          []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusResolved},
	})

	assert.Equal(t, "1=1 AND created_by_id=$1 AND (assigned_to_id=$2 OR assigned_to_id IS NULL) AND status IN ($3,$4)", where)
	assert.Len(t, args, 4)
}

func TestActivityLogWhereActions(t *testing.T) {
	where, args := activityLogWhere(ActivityLogFilter{Actions: []string{"SLA Escalated"}})
	assert.Equal(t, "1=1 AND action IN ($1)", where)
	assert.Equal(t, []any{"SLA Escalated"}, args)
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("3f1c7a2e-8a4b-4c1d-9e2f-0a1b2c3d4e5f"))
	assert.False(t, validID("abc"))
	assert.False(t, validID(""))
}

func TestGetByIDRejectsMalformedIDsBeforeQuerying(t *testing.T) {
	// A nil pool would panic if a query were attempted.
	_, err := NewTicketRepository(nil).GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = NewUserRepository(nil).GetByID(context.Background(), "7")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = NewCategoryRepository(nil).GetByID(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, NewUserRepository(nil).UpdateRole(context.Background(), "7", domain.UserRoleAdmin), ErrNotFound)
}
