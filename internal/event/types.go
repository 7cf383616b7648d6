package event

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	SessionID string `json:"sessionId"`
}

// SessionDeletedData is the data for session.deleted events.
type SessionDeletedData struct {
	SessionID string `json:"sessionId"`
}

// SessionExpiredData is the data for session.expired events, published by
// the TTL sweep when it evicts an idle session.
type SessionExpiredData struct {
	SessionID string `json:"sessionId"`
	IdleSecs  int64  `json:"idleSecs"`
}

// TicketCreatedData is the data for ticket.created events.
type TicketCreatedData struct {
	SessionID string `json:"sessionId"`
	TicketID  int64  `json:"ticketId"`
	CompanyID int64  `json:"companyId"`
}

// TicketUpdatedData is the data for ticket.updated events.
type TicketUpdatedData struct {
	SessionID string `json:"sessionId"`
	TicketID  int64  `json:"ticketId"`
}

// ContactCreatedData is the data for contact.created events.
type ContactCreatedData struct {
	SessionID string `json:"sessionId"`
	ContactID int64  `json:"contactId"`
	CompanyID int64  `json:"companyId"`
}

// ContactUpdatedData is the data for contact.updated events.
type ContactUpdatedData struct {
	SessionID string `json:"sessionId"`
	ContactID int64  `json:"contactId"`
}

// SessionID extracts the owning session id from an event's data, if the
// payload carries one. Events without a session id return "".
func (e Event) SessionID() string {
	switch data := e.Data.(type) {
	case SessionCreatedData:
		return data.SessionID
	case SessionDeletedData:
		return data.SessionID
	case SessionExpiredData:
		return data.SessionID
	case TicketCreatedData:
		return data.SessionID
	case TicketUpdatedData:
		return data.SessionID
	case ContactCreatedData:
		return data.SessionID
	case ContactUpdatedData:
		return data.SessionID
	}
	return ""
}
