// Package tools assembles the MCP server exposing the helpdesk operations
// the voice agent can invoke: tickets, company/contact lookup, and
// technician phone availability.
package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/voicedesk-ai/voicedesk/internal/autotask"
	"github.com/voicedesk-ai/voicedesk/internal/event"
	"github.com/voicedesk-ai/voicedesk/internal/phonestatus"
	"github.com/voicedesk-ai/voicedesk/internal/tenant"
)

// ServerName and ServerVersion identify the gateway in the MCP handshake.
const (
	ServerName    = "voicedesk"
	ServerVersion = "1.0.0"
)

// TicketingClient is the slice of the ticketing API the tools consume.
type TicketingClient interface {
	CreateTicket(ctx context.Context, params autotask.CreateTicketParams) (*autotask.TicketRef, error)
	GetTicketByID(ctx context.Context, id int64) (*autotask.Ticket, error)
	GetResourceByID(ctx context.Context, id int64) (*autotask.Resource, error)
	SearchCompanyByName(ctx context.Context, name string) ([]autotask.CompanyMatch, error)
	SearchContactByName(ctx context.Context, companyID int64, first, last string) ([]autotask.Contact, error)
	CreateContact(ctx context.Context, params autotask.CreateContactParams) (*autotask.Contact, error)
	UpdateContact(ctx context.Context, contactID int64, params autotask.UpdateContactParams) error
}

// PhoneClient is the slice of the phone-status API the tools consume.
type PhoneClient interface {
	GetPhoneStatuses(ctx context.Context) ([]phonestatus.PhoneStatus, error)
}

// Deps are the collaborators behind the tool handlers.
type Deps struct {
	Ticketing TicketingClient
	Phones    PhoneClient
	Tenants   *tenant.Registry
	Bus       *event.Bus
}

// handlers carries Deps through the tool closures.
type handlers struct {
	Deps
}

// New builds the MCP server with every tool registered.
func New(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
	)

	h := &handlers{Deps: deps}

	s.AddTool(mcp.NewTool("create_ticket",
		mcp.WithDescription("Create a support ticket for a configured company"),
		mcp.WithNumber("company_id", mcp.Required(), mcp.Description("Company id of the tenant the ticket belongs to")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short summary of the issue")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Full description of the issue as reported by the caller")),
		mcp.WithNumber("contact_id", mcp.Description("Contact reporting the issue, if known")),
		mcp.WithNumber("queue_id", mcp.Description("Routing queue; defaults to the tenant's configured queue")),
	), h.createTicket)

	s.AddTool(mcp.NewTool("get_ticket_status",
		mcp.WithDescription("Look up a ticket's number, status and assigned technician"),
		mcp.WithNumber("ticket_id", mcp.Required(), mcp.Description("Ticket id")),
	), h.getTicketStatus)

	s.AddTool(mcp.NewTool("search_company",
		mcp.WithDescription("Find a company by name, loosening the match until something is found"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Company name as spoken by the caller")),
	), h.searchCompany)

	s.AddTool(mcp.NewTool("search_contact",
		mcp.WithDescription("Find a contact at a company by first and last name"),
		mcp.WithNumber("company_id", mcp.Required(), mcp.Description("Company id")),
		mcp.WithString("first_name", mcp.Required(), mcp.Description("Contact first name")),
		mcp.WithString("last_name", mcp.Required(), mcp.Description("Contact last name")),
	), h.searchContact)

	s.AddTool(mcp.NewTool("create_contact",
		mcp.WithDescription("Create a contact at a company"),
		mcp.WithNumber("company_id", mcp.Required(), mcp.Description("Company id")),
		mcp.WithString("first_name", mcp.Required(), mcp.Description("Contact first name")),
		mcp.WithString("last_name", mcp.Required(), mcp.Description("Contact last name")),
		mcp.WithString("phone", mcp.Description("Callback phone number")),
		mcp.WithString("email", mcp.Description("Email address")),
	), h.createContact)

	s.AddTool(mcp.NewTool("update_contact",
		mcp.WithDescription("Update a contact's phone number or email address"),
		mcp.WithNumber("contact_id", mcp.Required(), mcp.Description("Contact id")),
		mcp.WithString("phone", mcp.Description("New phone number")),
		mcp.WithString("email", mcp.Description("New email address")),
	), h.updateContact)

	s.AddTool(mcp.NewTool("check_phone_availability",
		mcp.WithDescription("Check whether a technician's extension can take a transferred call"),
		mcp.WithString("extension", mcp.Required(), mcp.Description("Phone extension to check")),
	), h.checkPhoneAvailability)

	return s
}

// jsonResult marshals v as the tool's text content.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError("failed to encode result: " + err.Error())
	}
	return mcp.NewToolResultText(string(data))
}

// sessionKey is the context key carrying the invoking session's id.
type sessionKey struct{}

// WithSessionID binds the invoking session's id into the context so tool
// handlers can publish session-scoped events.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFromContext returns the invoking session's id, if bound.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok {
		return id
	}
	return ""
}

// publish emits a bus event if a bus is wired. Delivery is synchronous so
// events reach the session's stream in the order the actions happened.
func (h *handlers) publish(e event.Event) {
	if h.Bus != nil {
		h.Bus.PublishSync(e)
	}
}
