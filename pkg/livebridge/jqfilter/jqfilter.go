// Package jqfilter applies jq expressions to event envelopes. The watch CLI
// uses it for its --jq flag; observer pipelines can use it to select or
// reshape envelopes before rendering.
package jqfilter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/bakarr/livebridge/pkg/livebridge/events"
)

// Filter is a compiled jq expression over envelopes. The expression sees the
// envelope as {"type": ..., "payload": ...} and additionally gets the kind
// as the $kind variable, so selections like
//
//	select($kind == "DownloadProgress") | .payload.downloads
//
// work without digging into the input. A Filter is safe for concurrent use.
type Filter struct {
	code   *gojq.Code
	source string
}

// New parses and compiles the jq expression.
func New(expression string) (*Filter, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse jq expression %q: %w", expression, err)
	}

	code, err := gojq.Compile(query, gojq.WithVariables([]string{"$kind"}))
	if err != nil {
		return nil, fmt.Errorf("compile jq expression %q: %w", expression, err)
	}

	return &Filter{code: code, source: expression}, nil
}

// Source returns the original expression text.
func (f *Filter) Source() string {
	return f.source
}

// Apply runs the expression against one envelope and returns all produced
// values. An empty result means the envelope was filtered out. Execution
// errors (for example indexing a string) are returned, not swallowed.
func (f *Filter) Apply(ctx context.Context, env events.Envelope) ([]any, error) {
	input, err := envelopeInput(env)
	if err != nil {
		return nil, err
	}

	iter := f.code.RunWithContext(ctx, input, env.Kind)

	var results []any
	for {
		value, ok := iter.Next()
		if !ok {
			break
		}
		if execErr, isErr := value.(error); isErr {
			return nil, fmt.Errorf("run jq expression %q: %w", f.source, execErr)
		}
		results = append(results, value)
	}
	return results, nil
}

// envelopeInput renders the envelope as the primitive map/slice/scalar shape
// gojq requires. Typed payload records round-trip through JSON to become
// plain maps.
func envelopeInput(env events.Envelope) (any, error) {
	input := map[string]any{"type": env.Kind}

	switch payload := env.Payload.(type) {
	case nil:
		// No payload key at all for schema-less kinds.
	case events.RawPayload:
		input["payload"] = map[string]any(payload)
	default:
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload for jq: %w", err)
		}
		var primitive any
		if err := json.Unmarshal(raw, &primitive); err != nil {
			return nil, fmt.Errorf("unmarshal payload for jq: %w", err)
		}
		input["payload"] = primitive
	}

	return input, nil
}
