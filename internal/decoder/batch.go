package decoder

import (
	"context"

	"golang.org/x/sync/errgroup"

	"iso8583_parser/internal/iso8583"
)

// DefaultConcurrency is used by DecodeBatch when concurrency is not positive.
const DefaultConcurrency = 4

// BatchResult is the outcome of decoding one message of a batch.
type BatchResult struct {
	Index   int
	Message *iso8583.ParsedIsoMessage
	Err     error
}

// DecodeBatch decodes raws concurrently with at most concurrency workers.
// Results are returned in input order; a failing message does not stop the
// others. When ctx is cancelled no further messages are started and the
// remaining results carry ctx.Err().
func (d *Decoder) DecodeBatch(ctx context.Context, raws []string, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]BatchResult, len(raws))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, raw := range raws {
		results[i].Index = i
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Message, results[i].Err = d.Decode(raw)
			return nil
		})
	}

	_ = g.Wait()
	return results
}
