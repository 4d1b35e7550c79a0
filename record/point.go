package record

import (
	"fmt"
	"strconv"
	"strings"
)

// LabeledPoint is a binary label paired with the feature vector
// (class index, adult indicator, women indicator). The zero value is not a
// valid point; points are built by ParseLine or decoded with UnmarshalText.
type LabeledPoint struct {
	label    float64
	features [NumFeatures]float64
}

// Label returns 1 for survivors and 0 otherwise.
func (p LabeledPoint) Label() float64 {
	return p.label
}

// Features returns a copy of the feature vector.
func (p LabeledPoint) Features() [NumFeatures]float64 {
	return p.features
}

// String renders the point in LIBSVM form, e.g. "1 1:0 2:1 3:1".
func (p LabeledPoint) String() string {
	var b strings.Builder
	b.WriteString(formatFloat(p.label))
	for i, f := range p.features {
		fmt.Fprintf(&b, " %d:%s", i+1, formatFloat(f))
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler using the LIBSVM form.
func (p LabeledPoint) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Values outside the
// ranges ParseLine can produce are rejected.
func (p *LabeledPoint) UnmarshalText(text []byte) error {
	tokens := strings.Fields(string(text))
	if len(tokens) != NumFeatures+1 {
		return fmt.Errorf("labeled point %q: expected %d tokens, got %d", text, NumFeatures+1, len(tokens))
	}

	var decoded LabeledPoint
	label, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil {
		return fmt.Errorf("labeled point %q: %w", text, err)
	}
	decoded.label = label

	for i, tok := range tokens[1:] {
		idx, val, ok := strings.Cut(tok, ":")
		if !ok || idx != strconv.Itoa(i+1) {
			return fmt.Errorf("labeled point %q: bad feature token %q", text, tok)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("labeled point %q: %w", text, err)
		}
		decoded.features[i] = f
	}

	if !decoded.valid() {
		return fmt.Errorf("labeled point %q: value out of range", text)
	}
	*p = decoded
	return nil
}

func (p LabeledPoint) valid() bool {
	isBinary := func(v float64) bool { return v == 0 || v == 1 }
	class := p.features[0]
	return isBinary(p.label) &&
		(class == 0 || class == 1 || class == 2) &&
		isBinary(p.features[1]) &&
		isBinary(p.features[2])
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
