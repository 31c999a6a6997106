package waitlist

// SignupInput for POST /waitlist. The body is validated by the waitlist
// service rather than by huma so every rejection maps to an envelope reason.
type SignupInput struct {
	ContentType string `header:"Content-Type" doc:"application/json (default) or application/cbor"`
	RawBody     []byte `contentType:"application/json"`
}

// StatusInput for GET /waitlist (no body needed)
type StatusInput struct{}
