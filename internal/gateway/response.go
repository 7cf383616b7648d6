package gateway

import (
	"encoding/json"
	"net/http"
)

// JSON-RPC error codes. The standard codes cover envelope problems; the
// server-defined range carries the gateway's own failure taxonomy.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInternalError  = -32603

	codeUnauthorized     = -32001
	codeInvalidSession   = -32002
	codeForbidden        = -32003
	codeCapacityExceeded = -32004
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcErrorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   rpcError        `json:"error"`
}

// writeJSON writes a JSON response body with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeRPCError writes a JSON-RPC error envelope. A nil request id is
// encoded as JSON null, matching responses to unparseable requests.
func writeRPCError(w http.ResponseWriter, status, code int, message string, id json.RawMessage) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	writeJSON(w, status, rpcErrorResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   rpcError{Code: code, Message: message},
	})
}
