package listingtest

import (
	"context"
	"encoding/json"
)

type modelKey struct{}

func withModel(ctx context.Context, model json.RawMessage) context.Context {
	return context.WithValue(ctx, modelKey{}, model)
}

func modelFrom(ctx context.Context) json.RawMessage {
	model, _ := ctx.Value(modelKey{}).(json.RawMessage)
	return model
}
