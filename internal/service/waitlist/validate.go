package waitlist

import (
	"bytes"
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

const (
	// DefaultNameMaxLength bounds the optional name in runes.
	DefaultNameMaxLength = 200
	// maxEmailLength is the RFC 5321 path limit.
	maxEmailLength = 254
)

// emailPattern: one "@", no whitespace or control characters anywhere, and a
// dot-separated domain. RE2 \s is ASCII only, so Unicode separators are
// excluded explicitly.
var emailPattern = regexp.MustCompile(`^[^\p{Z}\p{Cc}@]+@[^\p{Z}\p{Cc}@]+\.[^\p{Z}\p{Cc}@]+$`)

// cborDecoder yields the same value shapes as encoding/json so decoded CBOR
// bodies share ValidatePayload.
var cborDecoder = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Rules configures validation.
type Rules struct {
	useCases      map[string]struct{}
	nameMaxLength int
}

// NewRules builds validation rules from the allowed use-case labels and the
// name bound. Labels are matched case-insensitively. A non-positive bound
// selects DefaultNameMaxLength.
func NewRules(useCases []string, nameMaxLength int) Rules {
	set := make(map[string]struct{}, len(useCases))
	for _, uc := range useCases {
		if uc = normalizeLabel(uc); uc != "" {
			set[uc] = struct{}{}
		}
	}
	if nameMaxLength <= 0 {
		nameMaxLength = DefaultNameMaxLength
	}
	return Rules{useCases: set, nameMaxLength: nameMaxLength}
}

// Validate parses a raw request body and validates it.
func Validate(raw []byte, rules Rules) (Draft, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Draft{}, invalid(InvalidPayload, "")
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Draft{}, invalid(InvalidPayload, "")
	}
	return ValidatePayload(payload, rules)
}

// ValidateCBOR decodes a CBOR request body and validates it like Validate.
func ValidateCBOR(raw []byte, rules Rules) (Draft, error) {
	if len(raw) == 0 {
		return Draft{}, invalid(InvalidPayload, "")
	}
	var payload any
	if err := cborDecoder.Unmarshal(raw, &payload); err != nil {
		return Draft{}, invalid(InvalidPayload, "")
	}
	return ValidatePayload(payload, rules)
}

// ValidatePayload validates an already decoded JSON value. Checks run in
// order: payload shape, consent, email, use case, name.
func ValidatePayload(payload any, rules Rules) (Draft, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return Draft{}, invalid(InvalidPayload, "")
	}

	if consent, ok := obj["consent"].(bool); !ok || !consent {
		return Draft{}, invalid(ConsentRequired, "consent")
	}

	rawEmail, ok := obj["email"].(string)
	if !ok {
		return Draft{}, invalid(InvalidEmail, "email")
	}
	email := NormalizeEmail(rawEmail)
	if len(email) > maxEmailLength || !emailPattern.MatchString(email) {
		return Draft{}, invalid(InvalidEmail, "email")
	}

	useCase, err := optionalString(obj, "useCase", InvalidUseCase)
	if err != nil {
		return Draft{}, err
	}
	useCase = normalizeLabel(useCase)
	if useCase != "" {
		if _, ok := rules.useCases[useCase]; !ok {
			return Draft{}, invalid(InvalidUseCase, "useCase")
		}
	}

	name, err := optionalString(obj, "name", InvalidPayload)
	if err != nil {
		return Draft{}, err
	}
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > rules.nameMaxLength {
		return Draft{}, invalid(NameTooLong, "name")
	}

	return Draft{Email: email, Name: name, UseCase: useCase}, nil
}

// NormalizeEmail trims and lower-cases an email. The result is the
// deduplication key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// optionalString reads an optional string field. Missing and null are the
// empty string; any other type is rejected with kind.
func optionalString(obj map[string]any, field string, kind ErrorKind) (string, error) {
	switch v := obj[field].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", invalid(kind, field)
	}
}
