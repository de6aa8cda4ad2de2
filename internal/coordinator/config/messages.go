package config

// Messages returned by the coordinator's HTTP API and MCP tools
const (
	// ErrSessionError is the format string for session errors
	ErrSessionError = "session error: %v"
	// ErrMissingSessionID is returned when a request names no session
	ErrMissingSessionID = "session_id is required"
	// ErrMissingPrompt is returned by generate without a prompt
	ErrMissingPrompt = "prompt is required"
	// ErrMissingMessage is returned by chat without a message
	ErrMissingMessage = "message is required"
	// MsgJobDispatched is the format string for an accepted generation job
	MsgJobDispatched = "%s generation dispatched for session %s"
)
