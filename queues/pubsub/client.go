package pubsub

import (
	"context"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// newClient dials Pub/Sub with an explicit credentials file when one is
// configured and with ambient credentials otherwise.
func newClient(ctx context.Context, projectID, credsFile, role string) (*gpubsub.Client, error) {
	var opts []option.ClientOption
	ev := log.Debug().Str("projectID", projectID).Str("role", role)
	if credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
		ev = ev.Str("credsFile", credsFile)
	}
	ev.Msg("pubsub: initializing client")
	client, err := gpubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		log.Error().Err(err).Str("projectID", projectID).Str("role", role).Msg("pubsub: failed to create client")
		return nil, err
	}
	return client, nil
}
