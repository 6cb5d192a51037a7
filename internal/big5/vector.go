// Package big5 implements the Big Five (OCEAN) personality vector and its
// wire and storage encodings.
package big5

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/Haku929/Amiro-sub000/internal/schema"
)

// ErrInvalid is returned for any candidate that is not a valid vector.
var ErrInvalid = errors.New("invalid big five vector")

// Axis names in storage order.
const (
	AxisOpenness          = "o"
	AxisConscientiousness = "c"
	AxisExtraversion      = "e"
	AxisAgreeableness     = "a"
	AxisNeuroticism       = "n"
)

// Axes lists the axis keys in the fixed storage order [o,c,e,a,n].
var Axes = [5]string{AxisOpenness, AxisConscientiousness, AxisExtraversion, AxisAgreeableness, AxisNeuroticism}

// Schema is the wire shape of a vector: exactly the five axis keys, each a
// number in [0,1].
var Schema = schema.Object{
	Properties: []schema.Property{
		{Name: AxisOpenness, Schema: schema.Number{Description: "Openness", Min: 0, Max: 1}},
		{Name: AxisConscientiousness, Schema: schema.Number{Description: "Conscientiousness", Min: 0, Max: 1}},
		{Name: AxisExtraversion, Schema: schema.Number{Description: "Extraversion", Min: 0, Max: 1}},
		{Name: AxisAgreeableness, Schema: schema.Number{Description: "Agreeableness", Min: 0, Max: 1}},
		{Name: AxisNeuroticism, Schema: schema.Number{Description: "Neuroticism", Min: 0, Max: 1}},
	},
}

// Vector is a Big Five estimate. Each field lies in [0,1].
type Vector struct {
	O float64 `json:"o"`
	C float64 `json:"c"`
	E float64 `json:"e"`
	A float64 `json:"a"`
	N float64 `json:"n"`
}

// Parse validates raw JSON against Schema and decodes it. Values are never
// clamped or defaulted.
func Parse(raw []byte) (Vector, error) {
	if err := schema.Validate(Schema, raw); err != nil {
		return Vector{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	var v Vector
	if err := json.Unmarshal(raw, &v); err != nil {
		return Vector{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return v, nil
}

// Validate checks an already decoded vector.
func (v Vector) Validate() error {
	for i, x := range v.Seq() {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 || x > 1 {
			return fmt.Errorf("%w: %s=%g is outside [0, 1]", ErrInvalid, Axes[i], x)
		}
	}
	return nil
}

// Seq returns the values in storage order [o,c,e,a,n].
func (v Vector) Seq() [5]float64 {
	return [5]float64{v.O, v.C, v.E, v.A, v.N}
}

// FromSeq builds a vector from a storage-order sequence. The sequence must
// hold exactly five in-range values.
func FromSeq(seq []float64) (Vector, error) {
	if len(seq) != 5 {
		return Vector{}, fmt.Errorf("%w: expected 5 values, got %d", ErrInvalid, len(seq))
	}
	v := Vector{O: seq[0], C: seq[1], E: seq[2], A: seq[3], N: seq[4]}
	if err := v.Validate(); err != nil {
		return Vector{}, err
	}
	return v, nil
}

// MarshalStored encodes the vector in its storage form, a JSON array.
func (v Vector) MarshalStored() ([]byte, error) {
	seq := v.Seq()
	return json.Marshal(seq[:])
}

// DecodeStored decodes a stored vector. Both the array form and the
// named-field object form are accepted; the latter passes through Parse.
func DecodeStored(raw []byte) (Vector, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var seq []float64
		if err := json.Unmarshal(raw, &seq); err != nil {
			return Vector{}, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		return FromSeq(seq)
	}
	return Parse(raw)
}

// OrDefault is the display fallback: a nil vector becomes one with every
// axis set to fallback. It is never applied during validation.
func OrDefault(v *Vector, fallback float64) Vector {
	if v == nil {
		return Vector{O: fallback, C: fallback, E: fallback, A: fallback, N: fallback}
	}
	return *v
}

// Distance returns the Euclidean distance between two vectors.
func Distance(a, b Vector) float64 {
	as, bs := a.Seq(), b.Seq()
	var sum float64
	for i := range as {
		d := as[i] - bs[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
