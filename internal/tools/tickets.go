package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/voicedesk-ai/voicedesk/internal/autotask"
	"github.com/voicedesk-ai/voicedesk/internal/event"
)

// ticketStatusResult is the payload returned by get_ticket_status.
type ticketStatusResult struct {
	TicketID     int64             `json:"ticketId"`
	TicketNumber string            `json:"ticketNumber"`
	Status       int               `json:"status"`
	Technician   *technicianDetail `json:"technician,omitempty"`
}

type technicianDetail struct {
	Name        string `json:"name"`
	OfficePhone string `json:"officePhone,omitempty"`
	MobilePhone string `json:"mobilePhone,omitempty"`
	Extension   string `json:"extension,omitempty"`
}

func (h *handlers) createTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	companyID, err := request.RequireInt("company_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	description, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ten, ok := h.Tenants.Get(int64(companyID))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("company %d is not a configured tenant", companyID)), nil
	}

	queueID := int64(request.GetInt("queue_id", 0))
	if queueID == 0 {
		queueID = ten.RoutingQueueID
	}

	ref, err := h.Ticketing.CreateTicket(ctx, autotask.CreateTicketParams{
		CompanyID:   ten.CompanyID,
		Title:       title,
		Description: description,
		ContactID:   int64(request.GetInt("contact_id", 0)),
		QueueID:     queueID,
	})
	if err != nil {
		return mcp.NewToolResultError("could not create the ticket: " + err.Error()), nil
	}

	h.publish(event.Event{
		Type: event.TicketCreated,
		Data: event.TicketCreatedData{
			SessionID: SessionIDFromContext(ctx),
			TicketID:  ref.TicketID,
			CompanyID: ten.CompanyID,
		},
	})

	return jsonResult(map[string]any{"ticketId": ref.TicketID}), nil
}

func (h *handlers) getTicketStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ticketID, err := request.RequireInt("ticket_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ticket, err := h.Ticketing.GetTicketByID(ctx, int64(ticketID))
	if err != nil {
		return mcp.NewToolResultError("could not look up the ticket: " + err.Error()), nil
	}

	result := ticketStatusResult{
		TicketID:     ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Status:       ticket.Status,
	}

	// Technician detail is best effort: a failed resource lookup still
	// leaves the caller with the ticket number.
	if ticket.AssignedResourceID != 0 {
		if res, err := h.Ticketing.GetResourceByID(ctx, ticket.AssignedResourceID); err == nil {
			result.Technician = &technicianDetail{
				Name:        res.FirstName + " " + res.LastName,
				OfficePhone: res.OfficePhone,
				MobilePhone: res.MobilePhone,
				Extension:   res.OfficeExtension,
			}
		}
	}

	return jsonResult(result), nil
}
