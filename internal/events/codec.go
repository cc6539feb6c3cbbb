package events

import (
	"encoding/json"
	"fmt"
)

// envelope is the wire shape: a Kind discriminator plus the raw
// variant payload, matching original_source's serde-tagged JSON
// (kafkaconsumer.rs serializes/deserializes the Event enum the same
// way — tag plus payload, not an externally-tagged map).
type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal encodes an Event for publication to the log (see
// internal/ingest and internal/submit).
func Marshal(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s payload: %w", e.Kind(), err)
	}
	return json.Marshal(envelope{Kind: e.Kind(), Payload: payload})
}

// Unmarshal decodes a wire record into its concrete Event variant. A
// Kind the codec doesn't recognize is itself wrapped as a StopEvent so
// the caller (the Log Consumer) can keep the rest of the batch
// flowing instead of failing the whole poll — see
// original_source/src/kafka.rs's deserialize-failure handling.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &StopEvent{Tag: fmt.Sprintf("events: malformed envelope: %v", err)}, err
	}

	var out Event
	switch env.Kind {
	case KindTraderOrder:
		out = &TraderOrderEvent{}
	case KindTraderOrderUpdate:
		out = &TraderOrderUpdateEvent{}
	case KindTraderOrderFundingUpdate:
		out = &TraderOrderFundingUpdateEvent{}
	case KindTraderOrderLiquidation:
		out = &TraderOrderLiquidationEvent{}
	case KindLendOrder:
		out = &LendOrderEvent{}
	case KindPoolUpdate:
		out = &PoolUpdateEvent{}
	case KindFundingRateUpdate:
		out = &FundingRateUpdateEvent{}
	case KindCurrentPriceUpdate:
		out = &CurrentPriceUpdateEvent{}
	case KindSortedSetDBUpdate:
		out = &SortedSetDBUpdateEvent{}
	case KindPositionSizeLogDBUpdate:
		out = &PositionSizeLogDBUpdateEvent{}
	case KindStop:
		out = &StopEvent{}
	default:
		tag := fmt.Sprintf("events: unknown kind %q", env.Kind)
		return &StopEvent{Tag: tag}, fmt.Errorf(tag)
	}

	if err := json.Unmarshal(env.Payload, out); err != nil {
		tag := fmt.Sprintf("events: unmarshal %s payload: %v", env.Kind, err)
		return &StopEvent{Tag: tag}, fmt.Errorf(tag)
	}
	return out, nil
}
