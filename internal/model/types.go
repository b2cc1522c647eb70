package model

import "time"

const EnvelopeVersion = "v1"

// Envelope wraps every CLI response. Adapter results travel in Data unchanged.
type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Adapter   string    `json:"adapter,omitempty"`
	Function  string    `json:"function,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
}

// AdapterSummary is one row of `adapters list`.
type AdapterSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Chains      []string `json:"chains"`
	Functions   []string `json:"functions"`
}

// ProposalSummary is one row of `adapters proposals list`.
type ProposalSummary struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ChainID      int64  `json:"chain_id"`
	Account      string `json:"account"`
	Source       string `json:"source,omitempty"`
	Transactions int    `json:"transactions"`
	UpdatedAt    string `json:"updated_at"`
}
