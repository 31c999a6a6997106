package api

// Envelope is the uniform response shape of the waitlist API. OK is true for
// every accepted submission and for the health probe; failures carry a short
// human-readable reason in Error.
type Envelope struct {
	OK    bool   `json:"ok"              doc:"Whether the request succeeded" example:"true"`
	Error string `json:"error,omitempty" doc:"Reason for the failure"          example:"Invalid email"`
}

// Success returns the success envelope.
func Success() Envelope {
	return Envelope{OK: true}
}

// Failure returns a failure envelope carrying reason.
func Failure(reason string) Envelope {
	return Envelope{OK: false, Error: reason}
}
