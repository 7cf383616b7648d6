package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/voicedesk-ai/voicedesk/internal/phonestatus"
)

// availabilityResult is the payload returned by check_phone_availability.
type availabilityResult struct {
	Extension  string `json:"extension"`
	Found      bool   `json:"found"`
	Available  bool   `json:"available"`
	Registered bool   `json:"registered,omitempty"`
	OnCall     bool   `json:"onCall,omitempty"`
	UserStatus string `json:"userStatus,omitempty"`
}

func (h *handlers) checkPhoneAvailability(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	extension, err := request.RequireString("extension")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	statuses, err := h.Phones.GetPhoneStatuses(ctx)
	if err != nil {
		return mcp.NewToolResultError("could not check phone status: " + err.Error()), nil
	}

	status, found := phonestatus.FindExtension(statuses, extension)
	result := availabilityResult{
		Extension: extension,
		Found:     found,
	}
	if found {
		result.Available = status.AvailableForTransfer()
		result.Registered = status.Registered
		result.OnCall = status.OnCall
		result.UserStatus = string(status.UserStatus)
	}

	return jsonResult(result), nil
}
