package waitlist

import "time"

// Signup is the durable record of one accepted waitlist submission.
//
// Email, ID and SubmittedAt never change after the first insert. Consent is
// always true for stored records.
type Signup struct {
	ID          string
	Email       string
	Consent     bool
	Name        string
	UseCase     string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// Draft is a validated, normalized submission that has not been stored yet.
// Empty Name or UseCase means the submitter did not supply the field.
type Draft struct {
	Email   string
	Name    string
	UseCase string
}

// UpdateParams lists the mutable fields to change on an existing signup.
// Nil fields are left untouched.
type UpdateParams struct {
	Name      *string
	UseCase   *string
	UpdatedAt time.Time
}

// Empty reports whether the update would change nothing.
func (p UpdateParams) Empty() bool {
	return p.Name == nil && p.UseCase == nil
}

// Apply writes the changed fields onto s.
func (p UpdateParams) Apply(s *Signup) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.UseCase != nil {
		s.UseCase = *p.UseCase
	}
	if !p.UpdatedAt.IsZero() {
		s.UpdatedAt = p.UpdatedAt
	}
}

// Outcome is the successful result of a registration.
type Outcome string

const (
	// Created means this submission inserted the signup.
	Created Outcome = "created"
	// AlreadyRegistered means the email was already on the list. Mutable
	// fields may have been updated.
	AlreadyRegistered Outcome = "already_registered"
)

// Result describes a successful registration.
type Result struct {
	Outcome Outcome
	Signup  Signup
	// Updated lists the field names changed on an already registered signup.
	Updated []string
}
