package waitlist

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/janisto/waitlist/internal/api"
	applog "github.com/janisto/waitlist/internal/platform/logging"
	"github.com/janisto/waitlist/internal/platform/metrics"
	waitlistsvc "github.com/janisto/waitlist/internal/service/waitlist"
)

// DefaultMaxBodyBytes bounds the submission body.
const DefaultMaxBodyBytes = 16 << 10

// Options configures the waitlist endpoints.
type Options struct {
	UseCases      []string
	NameMaxLength int
	MaxBodyBytes  int64
	Metrics       *metrics.Metrics
}

type handler struct {
	svc     waitlistsvc.Service
	rules   waitlistsvc.Rules
	metrics *metrics.Metrics
}

// Register registers waitlist endpoints.
func Register(api huma.API, svc waitlistsvc.Service, opts Options) {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	h := &handler{
		svc:     svc,
		rules:   waitlistsvc.NewRules(opts.UseCases, opts.NameMaxLength),
		metrics: opts.Metrics,
	}

	body := &huma.RequestBody{
		Description: "Waitlist submission",
		Content: map[string]*huma.MediaType{
			"application/json": {Schema: signupRequestSchema(opts.UseCases)},
		},
	}
	huma.Register(api, huma.Operation{
		OperationID:      "join-waitlist",
		Method:           http.MethodPost,
		Path:             "/waitlist",
		Summary:          "Join the waitlist",
		Description:      "Records a signup for the email address. Resubmitting an email already on the list succeeds and updates the optional fields.",
		Tags:             []string{"Waitlist"},
		MaxBodyBytes:     opts.MaxBodyBytes,
		SkipValidateBody: true,
		RequestBody:      body,
		Errors:           []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, h.join)
	// huma marks RawBody inputs required at registration; empty bodies are
	// rejected by the validator instead.
	body.Required = false

	huma.Register(api, huma.Operation{
		OperationID: "waitlist-status",
		Method:      http.MethodGet,
		Path:        "/waitlist",
		Summary:     "Waitlist health probe",
		Description: "Always reports ok. Does not touch the store.",
		Tags:        []string{"Waitlist"},
	}, h.status)
}

func (h *handler) status(_ context.Context, _ *StatusInput) (*StatusOutput, error) {
	return &StatusOutput{Body: api.Success()}, nil
}

func (h *handler) join(ctx context.Context, input *SignupInput) (*SignupOutput, error) {
	draft, err := parse(input.ContentType, input.RawBody, h.rules)
	if err != nil {
		return h.reject(ctx, err), nil
	}

	res, err := h.svc.Register(ctx, draft)
	if err != nil {
		return h.reject(ctx, err), nil
	}

	applog.LogInfo(ctx, "submission accepted",
		zap.String("outcome", string(res.Outcome)),
		zap.String("signup_id", res.Signup.ID),
	)
	h.metrics.Submission(string(res.Outcome))
	return &SignupOutput{Status: http.StatusOK, Body: api.Success()}, nil
}

// reject maps a service error to a failure envelope. Storage failures are
// logged by the service; validation failures are expected input and logged
// at info.
func (h *handler) reject(ctx context.Context, err error) *SignupOutput {
	kind := waitlistsvc.KindOf(err)
	h.metrics.Submission(string(kind))

	status := http.StatusBadRequest
	if kind == waitlistsvc.StorageUnavailable {
		status = http.StatusServiceUnavailable
	} else {
		applog.LogInfo(ctx, "submission rejected", zap.String("kind", string(kind)))
	}
	return &SignupOutput{Status: status, Body: api.Failure(kind.Reason())}
}
