package logging

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"go.uber.org/zap"
)

const traceparentHeader = "traceparent"

// W3C Trace Context: {version}-{trace-id}-{parent-id}-{trace-flags}
var traceHeaderRe = regexp.MustCompile(`^([0-9a-fA-F]{2})-([0-9a-fA-F]{32})-([0-9a-fA-F]{16})-([0-9a-fA-F]{2})$`)

var (
	projectMu sync.RWMutex
	projectID string
	projectOK bool
)

// SetProjectID pins the Google Cloud project used to build Cloud Trace
// resource names. An empty value falls back to the environment.
func SetProjectID(id string) {
	projectMu.Lock()
	defer projectMu.Unlock()
	projectID = id
	projectOK = id != ""
}

func resolveProjectID() string {
	projectMu.RLock()
	if projectOK {
		defer projectMu.RUnlock()
		return projectID
	}
	projectMu.RUnlock()
	return firstNonEmpty(
		os.Getenv("FIREBASE_PROJECT_ID"),
		os.Getenv("GOOGLE_CLOUD_PROJECT"),
		os.Getenv("GCLOUD_PROJECT"),
	)
}

type traceContext struct {
	traceID string
	spanID  string
	sampled bool
}

func parseTraceparent(header string) (traceContext, bool) {
	m := traceHeaderRe.FindStringSubmatch(header)
	if len(m) != 5 {
		return traceContext{}, false
	}
	return traceContext{traceID: m[2], spanID: m[3], sampled: m[4] == "01"}, true
}

func traceResource(header, project string) string {
	if project == "" {
		return ""
	}
	tc, ok := parseTraceparent(header)
	if !ok {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", project, tc.traceID)
}

func loggerWithTrace(base *zap.Logger, header, project, requestID string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	var fields []zap.Field
	if resource := traceResource(header, project); resource != "" {
		tc, _ := parseTraceparent(header)
		fields = append(fields,
			zap.String("logging.googleapis.com/trace", resource),
			zap.String("logging.googleapis.com/spanId", tc.spanID),
			zap.Bool("logging.googleapis.com/trace_sampled", tc.sampled),
		)
	}
	if requestID != "" {
		fields = append(fields, zap.String("requestId", requestID))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
