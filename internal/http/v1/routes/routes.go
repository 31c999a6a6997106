package routes

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"

	"github.com/janisto/waitlist/internal/http/v1/waitlist"
	"github.com/janisto/waitlist/internal/platform/respond"
	waitlistsvc "github.com/janisto/waitlist/internal/service/waitlist"
)

// DocsPath serves the interactive API reference.
const DocsPath = "/api-docs"

// NewConfig returns the huma configuration shared by the server and tests.
func NewConfig(title, version string) huma.Config {
	cfg := huma.DefaultConfig(title, version)
	cfg.DocsPath = DocsPath
	// Responses are bare envelopes; drop the $schema link huma adds to bodies.
	cfg.CreateHooks = nil
	return cfg
}

// NewAPI mounts a huma API on router. Error responses use the waitlist
// envelope, and every JSON media type is also advertised as CBOR.
func NewAPI(router chi.Router, cfg huma.Config) huma.API {
	respond.Install()
	api := humachi.New(router, cfg)
	api.OpenAPI().OnAddOperation = append(api.OpenAPI().OnAddOperation, addCBORContent)
	return api
}

func addCBORContent(_ *huma.OpenAPI, op *huma.Operation) {
	if op.RequestBody != nil && op.RequestBody.Content != nil {
		if jsonContent, ok := op.RequestBody.Content["application/json"]; ok {
			op.RequestBody.Content["application/cbor"] = jsonContent
		}
	}
	for _, resp := range op.Responses {
		if resp.Content == nil {
			continue
		}
		if jsonContent, ok := resp.Content["application/json"]; ok {
			resp.Content["application/cbor"] = jsonContent
		}
	}
}

// Register wires all HTTP routes into the provided API router.
func Register(api huma.API, svc waitlistsvc.Service, opts waitlist.Options) {
	waitlist.Register(api, svc, opts)
}
