package idempotency

import "context"

// Actor identifies who is retrying what. An empty key disables replay.
type Actor struct {
	ActorID        string
	IdempotencyKey string
}

type Store interface {
	GetIdempotencyRecord(ctx context.Context, actor, key, endpoint string) (int, map[string]any, bool, error)
	SaveIdempotencyRecord(ctx context.Context, actor, key, endpoint string, responseStatus int, responseBody map[string]any) error
}

// Replay returns the recorded response for a repeated request, if any.
func Replay(ctx context.Context, st Store, actor Actor, endpoint string) (int, map[string]any, bool, error) {
	if actor.IdempotencyKey == "" {
		return 0, nil, false, nil
	}
	status, body, found, err := st.GetIdempotencyRecord(ctx, actor.ActorID, actor.IdempotencyKey, endpoint)
	if err != nil {
		return 0, nil, false, err
	}
	if !found {
		return 0, nil, false, nil
	}
	return status, body, true, nil
}

func Save(ctx context.Context, st Store, actor Actor, endpoint string, status int, response map[string]any) error {
	if actor.IdempotencyKey == "" {
		return nil
	}
	return st.SaveIdempotencyRecord(ctx, actor.ActorID, actor.IdempotencyKey, endpoint, status, response)
}
