package autotask

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/agnivade/levenshtein"
)

// CreateTicket opens a new support ticket and returns its id.
func (c *Client) CreateTicket(ctx context.Context, params CreateTicketParams) (*TicketRef, error) {
	var ref TicketRef
	if err := c.do(ctx, "createTicket", http.MethodPost, "/Tickets", params, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// GetTicketByID fetches a ticket.
func (c *Client) GetTicketByID(ctx context.Context, id int64) (*Ticket, error) {
	var resp itemResponse[Ticket]
	path := fmt.Sprintf("/Tickets/%d", id)
	if err := c.do(ctx, "getTicketById", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

// GetResourceByID fetches a technician/staff record, including phone numbers.
func (c *Client) GetResourceByID(ctx context.Context, id int64) (*Resource, error) {
	var resp itemResponse[Resource]
	path := fmt.Sprintf("/Resources/%d", id)
	if err := c.do(ctx, "getResourceById", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

// SearchCompanyByName looks a company up by name with tiered fallback:
// exact match first, then begins-with, then contains. The first tier with
// any hits wins; every hit is annotated with its tier and a confidence
// score so downstream callers can treat loose matches with suspicion.
func (c *Client) SearchCompanyByName(ctx context.Context, name string) ([]CompanyMatch, error) {
	tiers := []struct {
		tier MatchTier
		op   string
	}{
		{MatchExact, "eq"},
		{MatchPrefix, "beginsWith"},
		{MatchContains, "contains"},
	}

	for _, t := range tiers {
		companies, err := c.queryCompanies(ctx, t.op, name)
		if err != nil {
			return nil, err
		}
		if len(companies) == 0 {
			continue
		}

		matches := make([]CompanyMatch, len(companies))
		for i, company := range companies {
			matches[i] = CompanyMatch{
				Company:    company,
				Tier:       t.tier,
				Confidence: matchConfidence(t.tier, name, company.CompanyName),
			}
		}
		return matches, nil
	}
	return nil, nil
}

// queryCompanies runs one company name query with the given operator.
func (c *Client) queryCompanies(ctx context.Context, op, name string) ([]Company, error) {
	req := queryRequest{Filter: []queryFilter{{Field: "companyName", Op: op, Value: name}}}
	var resp itemsResponse[Company]
	if err := c.do(ctx, "searchCompanyByName", http.MethodPost, "/Companies/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// matchConfidence scores a company hit. Exact hits are always high; prefix
// hits medium; contains hits are graded by edit-distance similarity between
// the spoken query and the stored name.
func matchConfidence(tier MatchTier, query, found string) Confidence {
	switch tier {
	case MatchExact:
		return ConfidenceHigh
	case MatchPrefix:
		return ConfidenceMedium
	}

	q := strings.ToLower(strings.TrimSpace(query))
	f := strings.ToLower(strings.TrimSpace(found))
	longest := max(len(q), len(f))
	if longest == 0 {
		return ConfidenceLow
	}
	similarity := 1 - float64(levenshtein.ComputeDistance(q, f))/float64(longest)
	if similarity >= 0.5 {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// SearchContactByName finds contacts at a company by first and last name.
func (c *Client) SearchContactByName(ctx context.Context, companyID int64, first, last string) ([]Contact, error) {
	req := queryRequest{Filter: []queryFilter{
		{Field: "companyID", Op: "eq", Value: companyID},
		{Field: "firstName", Op: "eq", Value: first},
		{Field: "lastName", Op: "eq", Value: last},
	}}
	var resp itemsResponse[Contact]
	if err := c.do(ctx, "searchContactByName", http.MethodPost, "/Contacts/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// CreateContact creates a contact at a company.
func (c *Client) CreateContact(ctx context.Context, params CreateContactParams) (*Contact, error) {
	var resp itemResponse[Contact]
	if err := c.do(ctx, "createContact", http.MethodPost, "/Contacts", params, &resp); err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

// UpdateContact patches a contact's phone and/or email.
func (c *Client) UpdateContact(ctx context.Context, contactID int64, params UpdateContactParams) error {
	path := fmt.Sprintf("/Contacts/%d", contactID)
	return c.do(ctx, "updateContact", http.MethodPatch, path, params, nil)
}
