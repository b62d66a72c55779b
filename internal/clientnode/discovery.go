package clientnode

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog/log"

	"github.com/lloom-network/lloom/internal/protocol"
)

// AggregatedModel deduplicates a ModelDescriptor seen from possibly many
// validators, tracking how many distinct validators reported it as a
// rough confidence signal for the caller.
type AggregatedModel struct {
	protocol.ModelDescriptor
	SeenFromValidators int
}

// DiscoverModels fans a QueryListAll ModelQuery out to every validator
// discoverable on the DHT (up to maxValidators), then merges the results
// into one model-id-keyed view. A validator that fails to answer is
// skipped rather than failing the whole discovery round — this is a
// best-effort "what's out there" scan, not a transactional read.
func (c *Client) DiscoverModels(ctx context.Context, maxValidators int) ([]AggregatedModel, error) {
	validators, err := c.DiscoverValidators(ctx, maxValidators)
	if err != nil {
		return nil, err
	}

	type partial struct {
		validator peer.AddrInfo
		resp      protocol.ModelQueryResponse
		err       error
	}

	results := make(chan partial, len(validators))
	var wg sync.WaitGroup
	for _, v := range validators {
		wg.Add(1)
		go func(v peer.AddrInfo) {
			defer wg.Done()
			resp, err := c.QueryModels(ctx, v, protocol.ModelQuery{
				QueryID: queryID(v),
				Kind:    protocol.QueryListAll,
			})
			results <- partial{validator: v, resp: resp, err: err}
		}(v)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var responses []protocol.ModelQueryResponse
	for r := range results {
		if r.err != nil {
			log.Warn().Str("validator", r.validator.ID.String()).Err(r.err).Msg("clientnode: model discovery query failed, skipping validator")
			continue
		}
		responses = append(responses, r.resp)
	}

	return mergeModelResponses(responses), nil
}

// mergeModelResponses dedupes ModelDescriptors by ModelID across several
// validators' ModelQueryResponses, counting how many validators reported
// each one. Pulled out of DiscoverModels so the merge logic is testable
// without a live network.Host.
func mergeModelResponses(responses []protocol.ModelQueryResponse) []AggregatedModel {
	byModel := make(map[string]*AggregatedModel)
	var order []string
	for _, resp := range responses {
		for _, m := range resp.Models {
			agg, ok := byModel[m.ModelID]
			if !ok {
				agg = &AggregatedModel{ModelDescriptor: m}
				byModel[m.ModelID] = agg
				order = append(order, m.ModelID)
			}
			agg.SeenFromValidators++
		}
	}

	out := make([]AggregatedModel, 0, len(order))
	for _, id := range order {
		out = append(out, *byModel[id])
	}
	return out
}

func queryID(v peer.AddrInfo) string {
	return "discover-" + v.ID.String()
}
