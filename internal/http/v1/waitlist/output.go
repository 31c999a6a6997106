package waitlist

import "github.com/janisto/waitlist/internal/api"

// SignupOutput for POST /waitlist (200, 400 or 503)
type SignupOutput struct {
	Status int
	Body   api.Envelope
}

// StatusOutput for GET /waitlist
type StatusOutput struct {
	Body api.Envelope
}
