package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	postingdomain "github.com/farmbooks/farmbooks/internal/posting/domain"
	"github.com/gin-gonic/gin"
)

type createEventRequest struct {
	Type           string          `json:"type" binding:"required"`
	SiteID         snowflake.ID    `json:"site_id"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key" binding:"required"`
	SourceType     string          `json:"source_type"`
	SourceID       string          `json:"source_id"`
	OccurredAt     *time.Time      `json:"occurred_at"`
}

type eventResponse struct {
	ID             snowflake.ID    `json:"id"`
	TenantID       snowflake.ID    `json:"tenant_id"`
	SiteID         snowflake.ID    `json:"site_id"`
	Type           string          `json:"type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Status         string          `json:"status"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	SourceType     string          `json:"source_type,omitempty"`
	SourceID       string          `json:"source_id,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
	CreatedAt      time.Time       `json:"created_at"`
	PostedAt       *time.Time      `json:"posted_at,omitempty"`
	FailedAt       *time.Time      `json:"failed_at,omitempty"`
	Error          *string         `json:"error,omitempty"`
	PostingResults json.RawMessage `json:"posting_results,omitempty"`

	ReversedByEventID *snowflake.ID `json:"reversed_by_event_id,omitempty"`
	ReversesEventID   *snowflake.ID `json:"reverses_event_id,omitempty"`
	ReversalReason    *string       `json:"reversal_reason,omitempty"`
}

func toEventResponse(ev *eventdomain.Event) eventResponse {
	return eventResponse{
		ID:                ev.ID,
		TenantID:          ev.TenantID,
		SiteID:            ev.SiteID,
		Type:              string(ev.Type),
		IdempotencyKey:    ev.IdempotencyKey,
		Status:            string(ev.Status),
		Payload:           json.RawMessage(ev.Payload),
		SourceType:        ev.SourceType,
		SourceID:          ev.SourceID,
		OccurredAt:        ev.OccurredAt,
		CreatedAt:         ev.CreatedAt,
		PostedAt:          ev.PostedAt,
		FailedAt:          ev.FailedAt,
		Error:             ev.Error,
		PostingResults:    json.RawMessage(ev.PostingResults),
		ReversedByEventID: ev.ReversedByEventID,
		ReversesEventID:   ev.ReversesEventID,
		ReversalReason:    ev.ReversalReason,
	}
}

func (s *Server) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	var occurredAt time.Time
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	ev, err := s.eventSvc.CreateEvent(c.Request.Context(), s.tenantID(c), eventdomain.CreateEventInput{
		Type:           eventdomain.EventType(req.Type),
		SiteID:         req.SiteID,
		Payload:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
		SourceType:     req.SourceType,
		SourceID:       req.SourceID,
		OccurredAt:     occurredAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toEventResponse(ev))
}

func (s *Server) ListEvents(c *gin.Context) {
	status := eventdomain.EventStatus(c.Query("status"))
	limit := intQuery(c, "limit", 100)

	events, err := s.eventSvc.ListEvents(c.Request.Context(), s.tenantID(c), status, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for i := range events {
		out = append(out, toEventResponse(&events[i]))
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (s *Server) GetEventByID(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "event id must be a nonzero integer"))
		return
	}

	ev, err := s.eventSvc.GetEvent(c.Request.Context(), s.tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEventResponse(ev))
}

func (s *Server) ProcessEvent(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "event id must be a nonzero integer"))
		return
	}

	results, err := s.postingSvc.ProcessEvent(c.Request.Context(), s.tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posting_results": results})
}

type reverseEventRequest struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

func (s *Server) ReverseEvent(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "event id must be a nonzero integer"))
		return
	}

	var req reverseEventRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
			return
		}
	}

	reversal, err := s.postingSvc.ReverseEvent(c.Request.Context(), s.tenantID(c), id, postingdomain.ReverseEventInput{
		Reason:      req.Reason,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEventResponse(reversal))
}

func (s *Server) RetryEvent(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "event id must be a nonzero integer"))
		return
	}

	if err := s.postingSvc.RetryEvent(c.Request.Context(), s.tenantID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DrainEvents processes pending events for the tenant on demand, same as one
// scheduler pass.
func (s *Server) DrainEvents(c *gin.Context) {
	limit := intQuery(c, "limit", s.cfg.DrainBatchSize)

	result, err := s.postingSvc.ProcessPendingEvents(c.Request.Context(), s.tenantID(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processed": result.Processed,
		"posted":    result.Posted,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	})
}
