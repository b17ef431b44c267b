package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	MsgEmpty       = "Empty message received"
	MsgInvalidJSON = "Invalid JSON received"
)

const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultEmpty    = "empty"
	ResultInvalid  = "invalid"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// Recorder observes served requests by result.
type Recorder interface {
	QueryServed(result string)
}

// Responder turns raw client messages into response values ready for JSON
// encoding. Malformed input becomes an ErrorResponse.
type Responder struct {
	engine   *Engine
	recorder Recorder
}

func NewResponder(engine *Engine, recorder Recorder) *Responder {
	return &Responder{engine: engine, recorder: recorder}
}

func (r *Responder) record(result string) {
	if r.recorder != nil {
		r.recorder.QueryServed(result)
	}
}

// RespondText handles a text frame carrying an optional JSON filter object.
func (r *Responder) RespondText(payload []byte) any {
	if len(bytes.TrimSpace(payload)) == 0 {
		r.record(ResultEmpty)
		return ErrorResponse{Error: MsgEmpty}
	}

	f, err := decodeFilter(payload)
	if err != nil {
		r.record(ResultInvalid)
		return ErrorResponse{Error: MsgInvalidJSON}
	}

	records := r.engine.Query(f)
	if len(records) == 0 {
		r.record(ResultNotFound)
		return ErrorResponse{Error: NotFoundMessage(f)}
	}
	r.record(ResultOK)
	return records
}

// RespondBare handles a frame without text payload: the full snapshot.
func (r *Responder) RespondBare() any {
	r.record(ResultOK)
	return r.engine.Query(Filter{})
}

func decodeFilter(payload []byte) (Filter, error) {
	// Only an object can carry filters; arrays and scalars are rejected.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Filter{}, err
	}
	if raw == nil {
		return Filter{}, fmt.Errorf("expected JSON object")
	}
	var f Filter
	if err := decodeField(raw, "pair", &f.Pair); err != nil {
		return Filter{}, err
	}
	if err := decodeField(raw, "exchange", &f.Exchange); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func decodeField(raw map[string]json.RawMessage, key string, dst **string) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}

// NotFoundMessage renders absent filters as None.
func NotFoundMessage(f Filter) string {
	return fmt.Sprintf("No data found for pair: %s, exchange: %s", orNone(f.Pair), orNone(f.Exchange))
}

func orNone(s *string) string {
	if s == nil {
		return "None"
	}
	return *s
}
