package waitlist

import "github.com/danielgtaylor/huma/v2"

// signupRequestSchema documents the accepted body. It is not enforced by huma.
func signupRequestSchema(useCases []string) *huma.Schema {
	enum := make([]any, 0, len(useCases))
	for _, uc := range useCases {
		enum = append(enum, uc)
	}
	return &huma.Schema{
		Type:     huma.TypeObject,
		Required: []string{"email", "consent"},
		Properties: map[string]*huma.Schema{
			"email": {
				Type:        huma.TypeString,
				Format:      "email",
				Description: "Email address, matched case-insensitively",
				Examples:    []any{"jane@example.com"},
			},
			"consent": {
				Type:        huma.TypeBoolean,
				Description: "Must be true",
				Examples:    []any{true},
			},
			"name": {
				Type:        huma.TypeString,
				Description: "Optional display name",
				Examples:    []any{"Jane"},
			},
			"useCase": {
				Type:        huma.TypeString,
				Description: "Optional intended use",
				Enum:        enum,
			},
		},
	}
}
