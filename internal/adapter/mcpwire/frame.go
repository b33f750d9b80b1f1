// Package mcpwire implements the wire protocol to a single backend MCP
// server: newline-delimited JSON request/reply frames over a long-lived
// TCP connection, demultiplexed by request id.
package mcpwire

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Request is one outbound frame. Params is JSON-encoded with the frame
// (omitted when nil), so callers pass a typed struct or map, or a
// json.RawMessage for an already-encoded blob.
type Request struct {
	Params any    `json:"params,omitempty"`
	Method string `json:"method"`
	ID     string `json:"id"`
}

// Reply is one inbound frame. Exactly one of Result/Error is populated,
// matching spec.md §5's wire contract.
type Reply struct {
	Result any         `json:"result,omitempty"`
	Error  *ReplyError `json:"error,omitempty"`
	ID     string      `json:"id"`
}

type ReplyError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *ReplyError) Error() string { return e.Message }

const (
	MethodPing    = "ping"
	MethodMetrics = "system/metrics"
	MethodQuery   = "rag/query"
)

// queryParams is the wire shape of a rag/query request; separate from
// domain.RAGRequest so the domain package never imports an encoding tag.
type queryParams struct {
	Query      string   `json:"query"`
	Context    string   `json:"context,omitempty"`
	MaxResults int      `json:"maxResults,omitempty"`
	Threshold  float64  `json:"threshold,omitempty"`
}

type queryResultWire struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

type queryResponseWire struct {
	Source           string            `json:"source"`
	QueryID          string            `json:"query_id"`
	Results          []queryResultWire `json:"results"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
}
