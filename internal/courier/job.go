package courier

import "encoding/json"

// Header names on the courier's publish contract.
const (
	// SignatureHeader carries the hex HMAC-SHA256 digest the receiving
	// endpoint verifies against its shared secret.
	SignatureHeader = "X-Pagemark-Signature"
	// HideHeadersHeader tells the courier to strip its own infrastructure
	// headers from the outbound request.
	HideHeadersHeader = "Courier-Hide-Headers"
	// CallbackSignatureHeader carries the JWT the courier signs its
	// callback invocations with.
	CallbackSignatureHeader = "Courier-Signature"
)

// Job is one delivery handed to the courier. The courier POSTs Body to URL
// with Headers, retries on its own schedule, and invokes Callback (or
// FailureCallback, set to the same URL) with a Result once the delivery
// reaches a terminal state.
type Job struct {
	URL             string            `json:"url"`
	Headers         map[string]string `json:"headers"`
	Body            json.RawMessage   `json:"body"`
	Callback        string            `json:"callback"`
	FailureCallback string            `json:"failureCallback"`
}

// Result is the body of a courier callback invocation. A delivery is
// considered failed when Error is non-empty; there is no separate failure
// URL path.
type Result struct {
	Status   int    `json:"status"`             // last HTTP status observed, 0 if none
	Attempts int    `json:"attempts"`           // delivery attempts performed
	Error    string `json:"error,omitempty"`    // terminal transport/HTTP error
	Body     string `json:"body,omitempty"`     // truncated response body, if any
}

// Failed reports whether the result describes a terminal failure.
func (r Result) Failed() bool {
	return r.Error != ""
}
