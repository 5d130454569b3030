package dispatch

// TriggerMessage is what the product's event sources publish to the
// triggers topic. Data is carried into the envelope untouched.
type TriggerMessage struct {
	TeamID       string            `json:"team_id"`
	Trigger      string            `json:"trigger"`
	Data         map[string]any    `json:"data"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}
