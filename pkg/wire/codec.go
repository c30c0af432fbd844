// Package wire defines the bridge message formats and their JSON codec.
package wire

import (
	"encoding/json"
	"fmt"
	"math"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Message kinds carried on the bridge.
const (
	KindTrade     = "trade"
	KindBenchmark = "benchmark"
)

// Msg is the tagged union over everything that travels on the bridge.
// The variant is resolved once, at decode time.
type Msg interface {
	Kind() string
}

// TradeMsg is a single executed trade. Immutable once constructed.
type TradeMsg struct {
	Type string  `json:"type"`
	Side Side    `json:"side"`
	Qty  float64 `json:"qty"`
	TS   float64 `json:"ts"`
}

func (TradeMsg) Kind() string { return KindTrade }

// NewTradeMsg builds a well-formed trade message.
func NewTradeMsg(side Side, qty, ts float64) TradeMsg {
	return TradeMsg{Type: KindTrade, Side: side, Qty: qty, TS: ts}
}

// BenchmarkMsg carries one benchmark metric sample.
type BenchmarkMsg struct {
	Type   string            `json:"type"`
	Metric string            `json:"metric"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
}

func (BenchmarkMsg) Kind() string { return KindBenchmark }

// NewBenchmarkMsg builds a well-formed benchmark message.
func NewBenchmarkMsg(metric string, value float64, labels map[string]string) BenchmarkMsg {
	return BenchmarkMsg{Type: KindBenchmark, Metric: metric, Value: value, Labels: labels}
}

// DecodeError reports a malformed or out-of-domain payload. Decoding is
// total: every bad input maps to a DecodeError, never a panic.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Field, e.Reason)
}

// EncodeError reports an event whose own invariants are violated. Encode is
// not the validation boundary; it only refuses input that is already broken.
type EncodeError struct {
	Field  string
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %s", e.Field, e.Reason)
}

// Encode serializes a message for the bridge.
func Encode(m Msg) ([]byte, error) {
	switch v := m.(type) {
	case TradeMsg:
		if err := v.validate(); err != nil {
			return nil, err
		}
		v.Type = KindTrade
		return json.Marshal(v)
	case *TradeMsg:
		return Encode(*v)
	case BenchmarkMsg:
		if err := v.validate(); err != nil {
			return nil, err
		}
		v.Type = KindBenchmark
		return json.Marshal(v)
	case *BenchmarkMsg:
		return Encode(*v)
	default:
		return nil, &EncodeError{Field: "type", Reason: fmt.Sprintf("unknown message kind %T", m)}
	}
}

func (m TradeMsg) validate() error {
	if m.Side != Buy && m.Side != Sell {
		return &EncodeError{Field: "side", Reason: fmt.Sprintf("unknown side %q", m.Side)}
	}
	if m.Qty < 0 || math.IsNaN(m.Qty) {
		return &EncodeError{Field: "qty", Reason: "must be >= 0"}
	}
	if math.IsNaN(m.TS) {
		return &EncodeError{Field: "ts", Reason: "not a number"}
	}
	return nil
}

func (m BenchmarkMsg) validate() error {
	if m.Metric == "" {
		return &EncodeError{Field: "metric", Reason: "empty metric name"}
	}
	return nil
}

// envelope keeps every field raw so a missing key, a present key, and a
// key of the wrong JSON type are all distinguishable per field.
type envelope map[string]json.RawMessage

func (env envelope) str(field string) (string, error) {
	raw, ok := env[field]
	if !ok {
		return "", &DecodeError{Field: field, Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &DecodeError{Field: field, Reason: "not a string"}
	}
	return s, nil
}

func (env envelope) num(field string) (float64, error) {
	raw, ok := env[field]
	if !ok {
		return 0, &DecodeError{Field: field, Reason: "missing"}
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, &DecodeError{Field: field, Reason: "not a number"}
	}
	return f, nil
}

// Decode parses a bridge frame into its message variant.
func Decode(data []byte) (Msg, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Field: "payload", Reason: err.Error()}
	}

	kind, err := env.str("type")
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindTrade:
		return decodeTrade(env)
	case KindBenchmark:
		return decodeBenchmark(env)
	default:
		return nil, &DecodeError{Field: "type", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
}

func decodeTrade(env envelope) (Msg, error) {
	s, err := env.str("side")
	if err != nil {
		return nil, err
	}
	side := Side(s)
	if side != Buy && side != Sell {
		return nil, &DecodeError{Field: "side", Reason: fmt.Sprintf("unknown side %q", s)}
	}
	qty, err := env.num("qty")
	if err != nil {
		return nil, err
	}
	if qty < 0 {
		return nil, &DecodeError{Field: "qty", Reason: "must be >= 0"}
	}
	ts, err := env.num("ts")
	if err != nil {
		return nil, err
	}
	return NewTradeMsg(side, qty, ts), nil
}

func decodeBenchmark(env envelope) (Msg, error) {
	metric, err := env.str("metric")
	if err != nil {
		return nil, err
	}
	if metric == "" {
		return nil, &DecodeError{Field: "metric", Reason: "empty metric name"}
	}
	value, err := env.num("value")
	if err != nil {
		return nil, err
	}
	var labels map[string]string
	if raw, ok := env["labels"]; ok {
		if err := json.Unmarshal(raw, &labels); err != nil {
			return nil, &DecodeError{Field: "labels", Reason: "not a string map"}
		}
	}
	return NewBenchmarkMsg(metric, value, labels), nil
}
