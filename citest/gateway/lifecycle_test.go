package gateway_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/voicedesk-ai/voicedesk/citest/testutil"
	"github.com/voicedesk-ai/voicedesk/internal/gateway"
)

// toolText digs the text payload out of a tools/call response envelope.
func toolText(resp map[string]any) string {
	result, _ := resp["result"].(map[string]any)
	content, _ := result["content"].([]any)
	if len(content) == 0 {
		return ""
	}
	first, _ := content[0].(map[string]any)
	text, _ := first["text"].(string)
	return text
}

var _ = Describe("Session lifecycle", func() {
	var sid string

	BeforeEach(func() {
		var err error
		sid, err = stack.Initialize()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if sid != "" {
			resp, err := stack.Terminate(sid)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
		}
	})

	It("returns a session id on initialize and accepts calls bound to it", func() {
		resp, err := stack.RPC(sid, map[string]any{"jsonrpc": "2.0", "method": "ping", "id": 2})
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("rejects calls with a session id that was never allocated", func() {
		resp, err := stack.RPC("01JUNKJUNKJUNKJUNKJUNKJUNK", map[string]any{
			"jsonrpc": "2.0", "method": "tools/list", "id": 2,
		})
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("terminates idempotently", func() {
		for i := 0; i < 2; i++ {
			resp, err := stack.Terminate(sid)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		}

		// The terminated session is invalid for further calls.
		resp, err := stack.RPC(sid, map[string]any{"jsonrpc": "2.0", "method": "ping", "id": 3})
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		sid = ""
	})

	It("lists the registered tools", func() {
		resp, err := stack.RPC(sid, map[string]any{"jsonrpc": "2.0", "method": "tools/list", "id": 2})
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var out struct {
			Result struct {
				Tools []struct {
					Name string `json:"name"`
				} `json:"tools"`
			} `json:"result"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())

		names := make([]string, 0, len(out.Result.Tools))
		for _, tool := range out.Result.Tools {
			names = append(names, tool.Name)
		}
		Expect(names).To(ContainElements(
			"create_ticket", "get_ticket_status", "search_company",
			"search_contact", "create_contact", "update_contact",
			"check_phone_availability",
		))
	})

	It("creates a ticket through the stub ticketing system", func() {
		resp, err := stack.CallTool(sid, "create_ticket", map[string]any{
			"company_id":  testutil.TenantCompanyID,
			"title":       "VPN down",
			"description": "Caller cannot reach the VPN",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(toolText(resp)).To(ContainSubstring(`"ticketId":9001`))
	})

	It("rejects ticket creation for an unconfigured tenant", func() {
		resp, err := stack.CallTool(sid, "create_ticket", map[string]any{
			"company_id":  424242,
			"title":       "t",
			"description": "d",
		})
		Expect(err).NotTo(HaveOccurred())

		result, _ := resp["result"].(map[string]any)
		Expect(result["isError"]).To(BeTrue())
	})

	It("reports ticket status with technician detail", func() {
		resp, err := stack.CallTool(sid, "get_ticket_status", map[string]any{
			"ticket_id": testutil.StubTicketID,
		})
		Expect(err).NotTo(HaveOccurred())

		text := toolText(resp)
		Expect(text).To(ContainSubstring(testutil.StubTicketNumber))
		Expect(text).To(ContainSubstring("Dana Kim"))
	})

	It("finds the tenant company by exact name", func() {
		resp, err := stack.CallTool(sid, "search_company", map[string]any{
			"name": testutil.TenantCompanyName,
		})
		Expect(err).NotTo(HaveOccurred())

		text := toolText(resp)
		Expect(text).To(ContainSubstring(`"tier":"exact"`))
		Expect(text).To(ContainSubstring(`"tenant":true`))
	})

	It("falls back to the prefix tier for a partial name", func() {
		resp, err := stack.CallTool(sid, "search_company", map[string]any{
			"name": "Acme",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(toolText(resp)).To(ContainSubstring(`"tier":"prefix"`))
	})

	It("decides transfer eligibility from phone status", func() {
		resp, err := stack.CallTool(sid, "check_phone_availability", map[string]any{
			"extension": "201",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(toolText(resp)).To(ContainSubstring(`"available":true`))

		resp, err = stack.CallTool(sid, "check_phone_availability", map[string]any{
			"extension": "202",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(toolText(resp)).To(ContainSubstring(`"available":false`))
	})
})

var _ = Describe("Access gate", func() {
	It("rejects requests without the shared secret", func() {
		body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": "ping", "id": 1})
		req, err := http.NewRequest("POST", stack.BaseURL+"/rpc", bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a wrong secret of the same length", func() {
		wrong := strings.Replace(testutil.SharedSecret, "c", "x", 1)
		body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": "ping", "id": 1})
		req, err := http.NewRequest("POST", stack.BaseURL+"/rpc", bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Authorization", "Bearer "+wrong)

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("serves health without credentials", func() {
		resp, err := http.Get(stack.BaseURL + "/healthz")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var st struct {
			MaxSessions int    `json:"maxSessions"`
			Version     string `json:"version"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&st)).To(Succeed())
		Expect(st.MaxSessions).To(Equal(100))
		Expect(st.Version).To(Equal("citest"))
	})
})

var _ = Describe("Envelope validation", func() {
	It("rejects frames that are not JSON-RPC 2.0", func() {
		body := []byte(`{"jsonrpc":"1.0","method":"ping","id":1}`)
		req, err := http.NewRequest("POST", stack.BaseURL+"/rpc", bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Authorization", "Bearer "+testutil.SharedSecret)

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

		var out struct {
			Error struct {
				Code int `json:"code"`
			} `json:"error"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		Expect(out.Error.Code).To(Equal(-32600))
	})

	It("exposes the session header to browser clients", func() {
		body := []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`)
		req, err := http.NewRequest("POST", stack.BaseURL+"/rpc", bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Authorization", "Bearer "+testutil.SharedSecret)

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.Header.Get("Access-Control-Expose-Headers")).To(ContainSubstring(gateway.HeaderSessionID))
	})
})
