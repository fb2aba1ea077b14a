package contract

import (
	"context"

	openaisdk "github.com/openai/openai-go"
)

// RecordStore abstracts the remote inventory database. SearchProducts with an
// empty term returns the unfiltered listing. AppendSale is append-only.
type RecordStore interface {
	SearchProducts(ctx context.Context, term string) ([]Product, error)
	SetStock(ctx context.Context, pageID string, newStock int) error
	SetPrice(ctx context.Context, pageID string, newPrice float64) error
	AppendSale(ctx context.Context, sale Sale) error
}

// ChatClient is the single model-boundary call: generate the next turn given
// the transcript and the tool catalog.
type ChatClient interface {
	Complete(
		ctx context.Context,
		messages []openaisdk.ChatCompletionMessageParamUnion,
		tools []openaisdk.ChatCompletionToolParam,
	) (*openaisdk.ChatCompletion, error)
}
