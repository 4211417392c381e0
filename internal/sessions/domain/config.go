package domain

import (
	"encoding/json"
	"time"
)

// SessionConfig holds per-session behaviour flags. Only AgentPrefix and
// AgentSuffix affect this package; the rest are stored for the agent and
// front ends to honour.
type SessionConfig struct {
	Interactive     bool          `json:"interactive"`
	Timeout         time.Duration `json:"timeout"` // 0 = none
	ContinueOnError bool          `json:"continue_on_error"`
	MaxSteps        int           `json:"max_steps"`
	AutoAdvance     bool          `json:"auto_advance"`
	AgentPrefix     bool          `json:"ai_agent_prefix"`
	AgentSuffix     bool          `json:"ai_agent_suffix"`
}

// DefaultSessionConfig returns the flags used when a session is created
// without explicit configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Timeout:     30 * time.Second,
		AgentPrefix: true,
	}
}

// MarshalJSON writes Timeout as whole seconds.
func (c SessionConfig) MarshalJSON() ([]byte, error) {
	type plain SessionConfig
	return json.Marshal(struct {
		plain
		Timeout int64 `json:"timeout"`
	}{plain(c), int64(c.Timeout / time.Second)})
}

// UnmarshalJSON reads Timeout as whole seconds.
func (c *SessionConfig) UnmarshalJSON(data []byte) error {
	type plain SessionConfig
	aux := struct {
		*plain
		Timeout int64 `json:"timeout"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Timeout = time.Duration(aux.Timeout) * time.Second
	return nil
}
