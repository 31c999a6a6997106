package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/janisto/waitlist/internal/platform/timeutil"
)

// DefaultKeyPrefix namespaces signup hashes.
const DefaultKeyPrefix = "waitlist:signup:"

// Hash fields.
const (
	fieldID          = "id"
	fieldEmail       = "email"
	fieldConsent     = "consent"
	fieldName        = "name"
	fieldUseCase     = "use_case"
	fieldSubmittedAt = "submitted_at"
	fieldUpdatedAt   = "updated_at"
)

// RedisStore implements Store as one hash per signup. Writes run in
// WATCH/MULTI transactions; a lost optimistic lock is ErrConflict.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. An empty prefix selects
// DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(email string) string {
	return s.prefix + email
}

func (s *RedisStore) Get(ctx context.Context, email string) (*Signup, error) {
	values, err := s.client.HGetAll(ctx, s.key(email)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return decodeRedisSignup(values)
}

func (s *RedisStore) Insert(ctx context.Context, signup *Signup) error {
	key := s.key(signup.Email)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeRedisSignup(signup))
			return nil
		})
		return err
	}, key)
	return mapRedisError(err)
}

func (s *RedisStore) Update(ctx context.Context, email string, params UpdateParams) (*Signup, error) {
	key := s.key(email)

	var result *Signup
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(values) == 0 {
			return ErrNotFound
		}
		current, err := decodeRedisSignup(values)
		if err != nil {
			return err
		}

		fields := map[string]any{fieldUpdatedAt: timeutil.Format(params.UpdatedAt)}
		if params.Name != nil {
			fields[fieldName] = *params.Name
		}
		if params.UseCase != nil {
			fields[fieldUseCase] = *params.UseCase
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			return nil
		}); err != nil {
			return err
		}

		params.Apply(current)
		result = current
		return nil
	}, key)
	if err != nil {
		return nil, mapRedisError(err)
	}
	return result, nil
}

func encodeRedisSignup(s *Signup) map[string]any {
	return map[string]any{
		fieldID:          s.ID,
		fieldEmail:       s.Email,
		fieldConsent:     strconv.FormatBool(s.Consent),
		fieldName:        s.Name,
		fieldUseCase:     s.UseCase,
		fieldSubmittedAt: timeutil.Format(s.SubmittedAt),
		fieldUpdatedAt:   timeutil.Format(s.UpdatedAt),
	}
}

func decodeRedisSignup(values map[string]string) (*Signup, error) {
	consent, err := strconv.ParseBool(values[fieldConsent])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldConsent, err)
	}
	submittedAt, err := timeutil.Parse(values[fieldSubmittedAt])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldSubmittedAt, err)
	}
	updatedAt, err := timeutil.Parse(values[fieldUpdatedAt])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldUpdatedAt, err)
	}
	return &Signup{
		ID:          values[fieldID],
		Email:       values[fieldEmail],
		Consent:     consent,
		Name:        values[fieldName],
		UseCase:     values[fieldUseCase],
		SubmittedAt: submittedAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func mapRedisError(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
