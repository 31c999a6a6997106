package waitlist

import "context"

// Store persists signups keyed by normalized email.
//
// Implementations must make Insert an atomic insert-if-absent: of two
// concurrent inserts for the same email, exactly one succeeds and the other
// returns ErrDuplicate. Update must only touch the fields named in params.
type Store interface {
	// Get returns ErrNotFound when no signup exists for email.
	Get(ctx context.Context, email string) (*Signup, error)
	// Insert returns ErrDuplicate when a signup already exists for the email.
	Insert(ctx context.Context, signup *Signup) error
	// Update returns the stored signup after the change, or ErrNotFound.
	Update(ctx context.Context, email string, params UpdateParams) (*Signup, error)
}
