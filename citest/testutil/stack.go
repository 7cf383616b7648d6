// Package testutil builds a complete in-process voicedesk stack for the
// end-to-end suites: the gateway mounted on an httptest server, stub
// downstream ticketing and phone-status servers, and a tenants file.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voicedesk-ai/voicedesk/internal/autotask"
	"github.com/voicedesk-ai/voicedesk/internal/event"
	"github.com/voicedesk-ai/voicedesk/internal/eventlog"
	"github.com/voicedesk-ai/voicedesk/internal/gateway"
	"github.com/voicedesk-ai/voicedesk/internal/phonestatus"
	"github.com/voicedesk-ai/voicedesk/internal/session"
	"github.com/voicedesk-ai/voicedesk/internal/tenant"
	"github.com/voicedesk-ai/voicedesk/internal/tools"
)

// Fixed fixture values served by the stub downstream servers.
const (
	TenantCompanyID   = 100
	TenantQueueID     = 8
	TenantCompanyName = "Acme Manufacturing"
	StubTicketID      = 9001
	StubTicketNumber  = "T20260901.0001"
	StubResourceID    = 7
)

// SharedSecret is the credential the suite's gateway expects.
const SharedSecret = "citest-secret"

// Stack is one fully wired gateway plus its collaborators.
type Stack struct {
	Server   *httptest.Server
	BaseURL  string
	Sessions *session.Registry
	Log      *eventlog.Log
	Bus      *event.Bus

	autotaskSrv *httptest.Server
	phoneSrv    *httptest.Server
	tmpDir      string
}

// StartStack builds and starts the full stack.
func StartStack() (*Stack, error) {
	tmpDir, err := os.MkdirTemp("", "voicedesk-citest")
	if err != nil {
		return nil, err
	}

	tenantsPath := filepath.Join(tmpDir, "tenants.yaml")
	tenantsYAML := fmt.Sprintf(`
tenants:
  - companyId: %d
    routingQueueId: %d
    displayName: %s
    transferExtension: "201"
`, TenantCompanyID, TenantQueueID, TenantCompanyName)
	if err := os.WriteFile(tenantsPath, []byte(tenantsYAML), 0o600); err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}

	tenants, err := tenant.Load(tenantsPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}

	autotaskSrv := httptest.NewServer(http.HandlerFunc(stubAutotask))
	phoneSrv := httptest.NewServer(http.HandlerFunc(stubPhoneStatus))

	ticketing := autotask.New(autotask.Config{
		BaseURL:  autotaskSrv.URL,
		Username: "citest",
		Secret:   "citest",
		APIKey:   "citest",
		Spacing:  time.Millisecond,
	})
	phones := phonestatus.New(phonestatus.Config{
		BaseURL: phoneSrv.URL,
		APIKey:  "citest",
		Spacing: time.Millisecond,
	})

	log := eventlog.New(0)
	bus := event.NewBus()
	sessions := session.New(session.DefaultConfig(), log, bus)

	mcp := tools.New(tools.Deps{
		Ticketing: ticketing,
		Phones:    phones,
		Tenants:   tenants,
		Bus:       bus,
	})

	cfg := gateway.DefaultConfig()
	cfg.SharedSecret = SharedSecret
	cfg.Version = "citest"

	srv := gateway.New(cfg, sessions, log, bus, mcp)
	httpSrv := httptest.NewServer(srv.Router())

	return &Stack{
		Server:      httpSrv,
		BaseURL:     httpSrv.URL,
		Sessions:    sessions,
		Log:         log,
		Bus:         bus,
		autotaskSrv: autotaskSrv,
		phoneSrv:    phoneSrv,
		tmpDir:      tmpDir,
	}, nil
}

// Stop tears the stack down.
func (s *Stack) Stop() {
	s.Server.Close()
	s.Sessions.TerminateAll()
	s.Bus.Close()
	s.autotaskSrv.Close()
	s.phoneSrv.Close()
	os.RemoveAll(s.tmpDir)
}

// RPC posts a JSON-RPC frame. An empty sid omits the session header.
func (s *Stack) RPC(sid string, frame map[string]any) (*http.Response, error) {
	body, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", s.BaseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+SharedSecret)
	if sid != "" {
		req.Header.Set(gateway.HeaderSessionID, sid)
	}
	return http.DefaultClient.Do(req)
}

// Initialize runs the handshake and returns the new session id.
func (s *Stack) Initialize() (string, error) {
	resp, err := s.RPC("", map[string]any{
		"jsonrpc": "2.0",
		"method":  "initialize",
		"id":      1,
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "citest", "version": "0.0.0"},
		},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("initialize: status %d", resp.StatusCode)
	}
	sid := resp.Header.Get(gateway.HeaderSessionID)
	if sid == "" {
		return "", fmt.Errorf("initialize: no session header")
	}
	return sid, nil
}

// Terminate deletes a session.
func (s *Stack) Terminate(sid string) (*http.Response, error) {
	req, err := http.NewRequest("DELETE", s.BaseURL+"/rpc", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+SharedSecret)
	req.Header.Set(gateway.HeaderSessionID, sid)
	return http.DefaultClient.Do(req)
}

// CallTool submits a tools/call frame and returns the decoded response.
func (s *Stack) CallTool(sid, name string, args map[string]any) (map[string]any, error) {
	resp, err := s.RPC(sid, map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      2,
		"params":  map[string]any{"name": name, "arguments": args},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tools/call %s: status %d", name, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// stubAutotask fakes the ticketing vendor API.
func stubAutotask(w http.ResponseWriter, r *http.Request) {
	writeItem := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"item": v})
	}
	writeItems := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": v})
	}

	switch {
	case r.Method == "POST" && r.URL.Path == "/Tickets":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"itemId": StubTicketID})

	case r.Method == "GET" && r.URL.Path == fmt.Sprintf("/Tickets/%d", StubTicketID):
		writeItem(map[string]any{
			"id":                 StubTicketID,
			"ticketNumber":       StubTicketNumber,
			"status":             1,
			"assignedResourceID": StubResourceID,
		})

	case r.Method == "GET" && r.URL.Path == fmt.Sprintf("/Resources/%d", StubResourceID):
		writeItem(map[string]any{
			"id":              StubResourceID,
			"firstName":       "Dana",
			"lastName":        "Kim",
			"officeExtension": "201",
		})

	case r.Method == "POST" && r.URL.Path == "/Companies/query":
		var q struct {
			Filter []struct {
				Op    string `json:"op"`
				Value string `json:"value"`
			} `json:"filter"`
		}
		json.NewDecoder(r.Body).Decode(&q)
		if len(q.Filter) == 1 && companyHit(q.Filter[0].Op, q.Filter[0].Value) {
			writeItems([]map[string]any{{
				"id":          TenantCompanyID,
				"companyName": TenantCompanyName,
				"isActive":    true,
			}})
			return
		}
		writeItems([]any{})

	case r.Method == "POST" && r.URL.Path == "/Contacts/query":
		writeItems([]map[string]any{{
			"id":        55,
			"companyID": TenantCompanyID,
			"firstName": "Pat",
			"lastName":  "Jones",
		}})

	case r.Method == "POST" && r.URL.Path == "/Contacts":
		writeItem(map[string]any{"id": 56, "companyID": TenantCompanyID})

	case r.Method == "PATCH" && strings.HasPrefix(r.URL.Path, "/Contacts/"):
		w.WriteHeader(http.StatusOK)

	default:
		http.NotFound(w, r)
	}
}

// companyHit applies the stub's matching rules for one query tier.
func companyHit(op, value string) bool {
	switch op {
	case "eq":
		return value == TenantCompanyName
	case "beginsWith":
		return strings.HasPrefix(TenantCompanyName, value)
	case "contains":
		return strings.Contains(strings.ToLower(TenantCompanyName), strings.ToLower(value))
	}
	return false
}

// stubPhoneStatus fakes the phone system status API.
func stubPhoneStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/statuses" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode([]map[string]any{
		{"extension": "201", "registered": true, "onCall": false, "userStatus": "Available", "name": "Dana Kim"},
		{"extension": "202", "registered": true, "onCall": true, "userStatus": "Available"},
	})
}
