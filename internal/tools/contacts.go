package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/voicedesk-ai/voicedesk/internal/autotask"
	"github.com/voicedesk-ai/voicedesk/internal/event"
)

func (h *handlers) searchCompany(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	matches, err := h.Ticketing.SearchCompanyByName(ctx, name)
	if err != nil {
		return mcp.NewToolResultError("company search failed: " + err.Error()), nil
	}

	// Only configured tenants are actionable for the agent.
	type companyResult struct {
		autotask.CompanyMatch
		Tenant bool `json:"tenant"`
	}
	results := make([]companyResult, len(matches))
	for i, m := range matches {
		_, isTenant := h.Tenants.Get(m.Company.ID)
		results[i] = companyResult{CompanyMatch: m, Tenant: isTenant}
	}

	return jsonResult(map[string]any{"matches": results}), nil
}

func (h *handlers) searchContact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	companyID, err := request.RequireInt("company_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	first, err := request.RequireString("first_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	last, err := request.RequireString("last_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, ok := h.Tenants.Get(int64(companyID)); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("company %d is not a configured tenant", companyID)), nil
	}

	contacts, err := h.Ticketing.SearchContactByName(ctx, int64(companyID), first, last)
	if err != nil {
		return mcp.NewToolResultError("contact search failed: " + err.Error()), nil
	}

	return jsonResult(map[string]any{"contacts": contacts}), nil
}

func (h *handlers) createContact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	companyID, err := request.RequireInt("company_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	first, err := request.RequireString("first_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	last, err := request.RequireString("last_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, ok := h.Tenants.Get(int64(companyID)); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("company %d is not a configured tenant", companyID)), nil
	}

	contact, err := h.Ticketing.CreateContact(ctx, autotask.CreateContactParams{
		CompanyID: int64(companyID),
		FirstName: first,
		LastName:  last,
		Phone:     request.GetString("phone", ""),
		Email:     request.GetString("email", ""),
	})
	if err != nil {
		return mcp.NewToolResultError("could not create the contact: " + err.Error()), nil
	}

	h.publish(event.Event{
		Type: event.ContactCreated,
		Data: event.ContactCreatedData{
			SessionID: SessionIDFromContext(ctx),
			ContactID: contact.ID,
			CompanyID: contact.CompanyID,
		},
	})

	return jsonResult(contact), nil
}

func (h *handlers) updateContact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contactID, err := request.RequireInt("contact_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var params autotask.UpdateContactParams
	if phone := request.GetString("phone", ""); phone != "" {
		params.Phone = &phone
	}
	if email := request.GetString("email", ""); email != "" {
		params.Email = &email
	}
	if params.Phone == nil && params.Email == nil {
		return mcp.NewToolResultError("nothing to update: provide phone and/or email"), nil
	}

	if err := h.Ticketing.UpdateContact(ctx, int64(contactID), params); err != nil {
		return mcp.NewToolResultError("could not update the contact: " + err.Error()), nil
	}

	h.publish(event.Event{
		Type: event.ContactUpdated,
		Data: event.ContactUpdatedData{
			SessionID: SessionIDFromContext(ctx),
			ContactID: int64(contactID),
		},
	})

	return jsonResult(map[string]any{"updated": true}), nil
}
