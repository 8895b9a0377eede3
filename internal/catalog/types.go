package catalog

import "time"

// Collector is a registered external program that produces structured
// output from structured input. Loaded from the collectors table.
type Collector struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"` // unique; dependency references use this
	FilePath       string            `json:"filePath"`
	InputSchema    map[string]any    `json:"inputSchema"` // JSON Schema subset, nil if not set
	OutputSchema   map[string]any    `json:"outputSchema"`
	TimeoutSeconds int               `json:"timeoutSeconds"` // default 30
	Enabled        bool              `json:"enabled"`
	Version        string            `json:"version"`
	Dependencies   []string          `json:"dependencies"` // ordered collector names
	Environment    map[string]string `json:"environment"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastExecutedAt *time.Time        `json:"lastExecutedAt"`
	ExecutionCount int64             `json:"executionCount"`
}

// DefaultTimeoutSeconds applies when a collector declares no timeout.
const DefaultTimeoutSeconds = 30

// Timeout returns the collector's configured timeout with the default applied.
func (c *Collector) Timeout() time.Duration {
	secs := c.TimeoutSeconds
	if secs <= 0 {
		secs = DefaultTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// Tool represents an external integration collectors and queries run against.
type Tool struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"` // "http", "database", "cloud"
	BaseURL   string    `json:"baseUrl"`
	AuthType  string    `json:"authType"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// Query is a parameterized statement defined against a tool.
type Query struct {
	ID         string    `json:"id"`
	ToolID     string    `json:"toolId"`
	Name       string    `json:"name"`
	Template   string    `json:"template"` // {{param}} placeholders
	Parameters []string  `json:"parameters"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Credential holds sealed auth material for a tool. Plaintext never
// leaves the secrets layer.
type Credential struct {
	ID         string
	ToolID     string
	Name       string
	Ciphertext []byte
	Nonce      []byte
	CreatedAt  time.Time
}
