package waitlist

import (
	"mime"

	waitlistsvc "github.com/janisto/waitlist/internal/service/waitlist"
)

const contentTypeCBOR = "application/cbor"

// parse validates body according to its declared content type. Anything
// that is not CBOR is treated as JSON.
func parse(contentType string, body []byte, rules waitlistsvc.Rules) (waitlistsvc.Draft, error) {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == contentTypeCBOR {
		return waitlistsvc.ValidateCBOR(body, rules)
	}
	return waitlistsvc.Validate(body, rules)
}
