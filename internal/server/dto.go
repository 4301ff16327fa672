package server

type ChatRequest struct {
	Message        string `json:"message"`
	ProjectContext string `json:"project_context"`
}

// ChatResponse is the success envelope. LimitReached is the structured
// rate-limit signal; Response still carries the human sentence so existing
// chat UIs can render it as a normal reply.
type ChatResponse struct {
	Response     string `json:"response"`
	LimitReached bool   `json:"limit_reached,omitempty"`
}

// ErrorResponse is the failure envelope. Retry is true only when the
// upstream failure was classified as transient overload.
type ErrorResponse struct {
	Error string `json:"error"`
	Retry bool   `json:"retry,omitempty"`
}
