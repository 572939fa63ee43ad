// Package rag implements the HTTP JSON client for the retrieval-augmented
// generation backend.
//
// Query failures are surfaced as plain Go errors — deciding whether to
// degrade to a non-RAG completion is the caller's responsibility
// (internal/llmcaller, internal/router), not this client's.
package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MrWong99/chatgw/pkg/types"
)

// DefaultTimeout is used when [Config.Timeout] is the zero value.
const DefaultTimeout = 10 * time.Second

// Config configures a [Client].
type Config struct {
	// BaseURL is the root address of the RAG query service.
	BaseURL string

	// APIKey authenticates requests, if the service requires it. Sent as a
	// Bearer token when non-empty.
	APIKey string

	// Timeout bounds a single query. Zero means [DefaultTimeout].
	Timeout time.Duration
}

// Document describes a single retrieved source passage.
type Document struct {
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
	ContentType string  `json:"content_type"`
}

// Metadata accompanies a [QueryResult], describing how it was produced.
type Metadata struct {
	DataSource      string     `json:"data_source"`
	ProcessingMs    int64      `json:"processing_ms"`
	Documents       []Document `json:"documents"`
	TotalSearched   int        `json:"total_searched"`
	RetrievalMethod string     `json:"retrieval_method"`
}

// QueryResult is the decoded response of a [Client.Query] call.
type QueryResult struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// wireMessage is the JSON shape of a message on the wire to the RAG service.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// queryRequest is the wire shape POSTed to the RAG service.
type queryRequest struct {
	User       string        `json:"user"`
	DataSource string        `json:"data_source"`
	Messages   []wireMessage `json:"messages"`
}

func toWireMessages(messages []types.Message) []wireMessage {
	wire := make([]wireMessage, len(messages))
	for i, m := range messages {
		wire[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	return wire
}

// Client queries a RAG backend over HTTP JSON.
type Client struct {
	http *resty.Client
}

// New constructs a [Client] from cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		http.SetAuthToken(cfg.APIKey)
	}
	return &Client{http: http}
}

// Query retrieves content relevant to messages from dataSource on behalf of
// user. Returns an error on any transport or non-2xx response — callers that
// want graceful degradation should catch the error and fall back to a
// non-RAG completion themselves.
func (c *Client) Query(ctx context.Context, user, dataSource string, messages []types.Message) (*QueryResult, error) {
	var result QueryResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(queryRequest{User: user, DataSource: dataSource, Messages: toWireMessages(messages)}).
		SetResult(&result).
		Post("/query")
	if err != nil {
		return nil, fmt.Errorf("rag: query request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("rag: query failed with status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}
