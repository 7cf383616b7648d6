package autotask

// Ticket is the gateway's view of a support ticket.
type Ticket struct {
	ID                 int64  `json:"id"`
	TicketNumber       string `json:"ticketNumber"`
	Title              string `json:"title"`
	Status             int    `json:"status"`
	CompanyID          int64  `json:"companyID"`
	ContactID          int64  `json:"contactID,omitempty"`
	QueueID            int64  `json:"queueID,omitempty"`
	AssignedResourceID int64  `json:"assignedResourceID,omitempty"`
}

// CreateTicketParams are the fields sent when opening a ticket.
type CreateTicketParams struct {
	CompanyID   int64  `json:"companyID"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ContactID   int64  `json:"contactID,omitempty"`
	QueueID     int64  `json:"queueID,omitempty"`
}

// TicketRef identifies a newly created ticket.
type TicketRef struct {
	TicketID int64 `json:"itemId"`
}

// Company is a customer organization record.
type Company struct {
	ID          int64  `json:"id"`
	CompanyName string `json:"companyName"`
	Phone       string `json:"phone,omitempty"`
	IsActive    bool   `json:"isActive"`
}

// MatchTier records which search tier produced a company hit.
type MatchTier string

const (
	MatchExact    MatchTier = "exact"
	MatchPrefix   MatchTier = "prefix"
	MatchContains MatchTier = "contains"
)

// Confidence is a coarse signal of how trustworthy a name match is.
// Contains-tier hits that barely resemble the query are flagged low so the
// agent layer can confirm with the caller instead of guessing.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// CompanyMatch is one tiered-search result.
type CompanyMatch struct {
	Company    Company    `json:"company"`
	Tier       MatchTier  `json:"tier"`
	Confidence Confidence `json:"confidence"`
}

// Contact is a person at a customer organization.
type Contact struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"companyID"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"emailAddress,omitempty"`
}

// CreateContactParams are the fields sent when creating a contact.
type CreateContactParams struct {
	CompanyID int64  `json:"companyID"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"emailAddress,omitempty"`
}

// UpdateContactParams carries the mutable contact fields. Nil means "leave
// unchanged".
type UpdateContactParams struct {
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"emailAddress,omitempty"`
}

// Resource is a technician/staff record.
type Resource struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	OfficePhone  string `json:"officePhone,omitempty"`
	MobilePhone  string `json:"mobilePhone,omitempty"`
	OfficeExtension string `json:"officeExtension,omitempty"`
}

// queryFilter is one predicate in a vendor query request.
type queryFilter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// queryRequest is the body of a vendor query call.
type queryRequest struct {
	Filter []queryFilter `json:"filter"`
}

// itemsResponse is the envelope of a vendor query response.
type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

// itemResponse is the envelope of a vendor get-by-id response.
type itemResponse[T any] struct {
	Item T `json:"item"`
}
