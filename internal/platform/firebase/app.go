package firebase

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// Config holds Firebase configuration.
type Config struct {
	ProjectID                    string
	GoogleApplicationCredentials string // Path to service account JSON (optional)
}

// NewFirestore initializes a Firebase app and returns its Firestore client.
// FIRESTORE_EMULATOR_HOST is honoured by the client library, so local runs
// need only a project ID.
func NewFirestore(ctx context.Context, cfg Config) (*firestore.Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase: project ID is required")
	}
	var opts []option.ClientOption
	if cfg.GoogleApplicationCredentials != "" {
		creds, err := os.ReadFile(cfg.GoogleApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("firebase: reading credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: initializing app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: creating Firestore client: %w", err)
	}
	return client, nil
}
