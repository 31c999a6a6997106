package waitlist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection holds one document per signup.
const DefaultCollection = "waitlist_signups"

// firestoreSignup maps to the Firestore document structure.
type firestoreSignup struct {
	ID          string    `firestore:"id"`
	Email       string    `firestore:"email"`
	Consent     bool      `firestore:"consent"`
	Name        string    `firestore:"name"`
	UseCase     string    `firestore:"use_case"`
	SubmittedAt time.Time `firestore:"submitted_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func (f firestoreSignup) signup() *Signup {
	return &Signup{
		ID:          f.ID,
		Email:       f.Email,
		Consent:     f.Consent,
		Name:        f.Name,
		UseCase:     f.UseCase,
		SubmittedAt: f.SubmittedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// FirestoreStore implements Store on Firestore. The document ID is derived
// from the normalized email, so Create gives insert-if-absent for free.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore creates a Firestore-backed store. An empty collection
// selects DefaultCollection.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{client: client, collection: collection}
}

// DocumentID returns the document ID for a normalized email. Emails contain
// characters Firestore reserves in IDs, so the ID is a hex SHA-256 digest.
func DocumentID(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

func (s *FirestoreStore) doc(email string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(DocumentID(email))
}

func (s *FirestoreStore) Get(ctx context.Context, email string) (*Signup, error) {
	doc, err := s.doc(email).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, mapFirestoreError(err)
	}

	var fs firestoreSignup
	if err := doc.DataTo(&fs); err != nil {
		return nil, err
	}
	return fs.signup(), nil
}

func (s *FirestoreStore) Insert(ctx context.Context, signup *Signup) error {
	fs := firestoreSignup{
		ID:          signup.ID,
		Email:       signup.Email,
		Consent:     signup.Consent,
		Name:        signup.Name,
		UseCase:     signup.UseCase,
		SubmittedAt: signup.SubmittedAt,
		UpdatedAt:   signup.UpdatedAt,
	}
	if _, err := s.doc(signup.Email).Create(ctx, fs); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrDuplicate
		}
		return mapFirestoreError(err)
	}
	return nil
}

// Update changes the mutable fields in a single-attempt transaction. Aborted
// transactions surface as ErrConflict and are retried by the caller.
func (s *FirestoreStore) Update(ctx context.Context, email string, params UpdateParams) (*Signup, error) {
	ref := s.doc(email)

	var result *Signup
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}

		var fs firestoreSignup
		if err := doc.DataTo(&fs); err != nil {
			return err
		}

		updates := []firestore.Update{{Path: "updated_at", Value: params.UpdatedAt}}
		if params.Name != nil {
			updates = append(updates, firestore.Update{Path: "name", Value: *params.Name})
		}
		if params.UseCase != nil {
			updates = append(updates, firestore.Update{Path: "use_case", Value: *params.UseCase})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}

		result = fs.signup()
		params.Apply(result)
		return nil
	}, firestore.MaxAttempts(1))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, mapFirestoreError(err)
	}
	return result, nil
}

func mapFirestoreError(err error) error {
	switch status.Code(err) {
	case codes.Aborted:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}
