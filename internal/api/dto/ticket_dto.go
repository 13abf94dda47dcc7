package dto

import (
	"encoding/json"
	"time"

	"github.com/medsupport/helpdesk/internal/domain"
	"github.com/medsupport/helpdesk/internal/service"
	"github.com/medsupport/helpdesk/internal/sla"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	CategoryID  *string               `json:"category_id"`
}

// UpdateTicketRequest is a partial update. Absent fields are untouched; an
// explicit null or empty string clears the assignee or category.
type UpdateTicketRequest struct {
	Status     *domain.TicketStatus   `json:"status"`
	Priority   *domain.TicketPriority `json:"priority"`
	AssigneeID OptionalString         `json:"assigned_to_id"`
	CategoryID OptionalString         `json:"category_id"`
}

// OptionalString tells an absent JSON field apart from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON marks the field as present.
func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		o.Value = nil
		return nil
	}
	o.Value = &s
	return nil
}

// ToInput converts the request to the service input.
func (r UpdateTicketRequest) ToInput() service.TicketUpdateInput {
	return service.TicketUpdateInput{
		Status:      r.Status,
		Priority:    r.Priority,
		SetAssignee: r.AssigneeID.Set,
		AssigneeID:  r.AssigneeID.Value,
		SetCategory: r.CategoryID.Set,
		CategoryID:  r.CategoryID.Value,
	}
}

// SLAResponse is the SLA state shown next to a ticket.
type SLAResponse struct {
	Hours            int        `json:"sla_hours"`
	DueAt            *time.Time `json:"due_at"`
	IsActive         bool       `json:"is_active"`
	IsBreached       bool       `json:"is_breached"`
	RemainingSeconds int64      `json:"remaining_seconds"`
}

// TicketResponse is a ticket as listed.
type TicketResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	CreatedByID string                `json:"created_by_id"`
	AssigneeID  *string               `json:"assigned_to_id"`
	CategoryID  *string               `json:"category_id"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	SLA         *SLAResponse          `json:"sla,omitempty"`
}

// ActivityResponse is one activity log entry.
type ActivityResponse struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      *string   `json:"user_id"`
}

// TicketDetailResponse is a ticket with its activity, newest first.
type TicketDetailResponse struct {
	TicketResponse
	Activity []ActivityResponse `json:"activity"`
}

// CommentRequest is the body of POST /tickets/:id/comments.
type CommentRequest struct {
	Comment string `json:"comment"`
}

// CreateCategoryRequest is the body of POST /admin/categories.
type CreateCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CategoryResponse is a ticket category.
type CategoryResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewTicketResponse maps a ticket without SLA data.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		CreatedByID: ticket.CreatedByID,
		AssigneeID:  ticket.AssigneeID,
		CategoryID:  ticket.CategoryID,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

// NewTicketViewResponse maps a ticket with its SLA state.
func NewTicketViewResponse(view *service.TicketView) TicketResponse {
	resp := NewTicketResponse(&view.Ticket)
	resp.SLA = newSLAResponse(view.SLA)
	return resp
}

// NewTicketDetailResponse maps a ticket detail.
func NewTicketDetailResponse(detail *service.TicketDetail) TicketDetailResponse {
	activity := make([]ActivityResponse, 0, len(detail.Activity))
	for i := range detail.Activity {
		activity = append(activity, NewActivityResponse(&detail.Activity[i]))
	}
	return TicketDetailResponse{
		TicketResponse: NewTicketViewResponse(&detail.TicketView),
		Activity:       activity,
	}
}

// NewActivityResponse maps one activity log entry.
func NewActivityResponse(entry *domain.ActivityLog) ActivityResponse {
	return ActivityResponse{
		ID:          entry.ID,
		Action:      entry.Action,
		Description: entry.Description,
		Timestamp:   entry.Timestamp,
		UserID:      entry.UserID,
	}
}

// NewCategoryResponse maps a category.
func NewCategoryResponse(c *domain.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name, Description: c.Description}
}

// NewCategoryResponses maps categories.
func NewCategoryResponses(categories []domain.Category) []CategoryResponse {
	resp := make([]CategoryResponse, 0, len(categories))
	for i := range categories {
		resp = append(resp, NewCategoryResponse(&categories[i]))
	}
	return resp
}

func newSLAResponse(state sla.State) *SLAResponse {
	return &SLAResponse{
		Hours:            state.SLAHours,
		DueAt:            state.DueAt,
		IsActive:         state.IsActive,
		IsBreached:       state.IsBreached,
		RemainingSeconds: state.RemainingSeconds,
	}
}
