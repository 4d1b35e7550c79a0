// Package record converts raw passenger CSV lines into labeled feature
// records for a binary survival classifier.
//
// A raw line carries five positional, optionally double-quoted fields:
// passenger id, class, age, sex and survival. ParseLine either returns a
// fully validated LabeledPoint or one of two error kinds, StructuralError
// or ValidationError. Everything in this package is pure and safe for
// concurrent use.
package record

import (
	"strings"
)

// NumFields is the number of comma-separated fields in a raw record.
const NumFields = 5

// NumFeatures is the length of a LabeledPoint's feature vector.
const NumFeatures = 3

// Recognized categorical values.
const (
	AgeAdult = "adults"
	AgeChild = "child"

	SexMan   = "man"
	SexWomen = "women"

	SurvivedYes = "yes"
	SurvivedNo  = "no"
)

// Passenger holds the quote-stripped fields of a raw record, before any
// categorical validation.
type Passenger struct {
	ID       string
	Class    string
	Age      string
	Sex      string
	Survived string
}

// SplitFields splits a raw line into its five fields and strips surrounding
// double quotes. A line that does not have exactly five fields yields a
// *StructuralError.
func SplitFields(line string) (Passenger, error) {
	fields := strings.Split(line, ",")
	if len(fields) != NumFields {
		return Passenger{}, &StructuralError{
			Line:   line,
			Reason: fieldCountReason(len(fields)),
		}
	}
	for i, f := range fields {
		fields[i] = strings.Trim(f, `"`)
	}
	return Passenger{
		ID:       fields[0],
		Class:    fields[1],
		Age:      fields[2],
		Sex:      fields[3],
		Survived: fields[4],
	}, nil
}

// LabeledPoint validates the passenger's categorical fields and derives its
// label and features.
func (p Passenger) LabeledPoint() (LabeledPoint, error) {
	if p.Age != AgeAdult && p.Age != AgeChild {
		return LabeledPoint{}, &ValidationError{Field: "age", Value: p.Age}
	}
	if p.Sex != SexMan && p.Sex != SexWomen {
		return LabeledPoint{}, &ValidationError{Field: "sex", Value: p.Sex}
	}
	if p.Survived != SurvivedYes && p.Survived != SurvivedNo {
		return LabeledPoint{}, &ValidationError{Field: "survived", Value: p.Survived}
	}
	class, err := classIndex(p.Class)
	if se, ok := err.(*StructuralError); ok {
		se.Line = p.String()
		return LabeledPoint{}, se
	} else if err != nil {
		return LabeledPoint{}, err
	}

	return LabeledPoint{
		label: indicator(p.Survived == SurvivedYes),
		features: [NumFeatures]float64{
			float64(class),
			indicator(p.Age == AgeAdult),
			indicator(p.Sex == SexWomen),
		},
	}, nil
}

// String joins the fields back into an unquoted raw line.
func (p Passenger) String() string {
	return strings.Join([]string{p.ID, p.Class, p.Age, p.Sex, p.Survived}, ",")
}

// ParseLine converts one raw line into a LabeledPoint.
func ParseLine(line string) (LabeledPoint, error) {
	p, err := SplitFields(line)
	if err != nil {
		return LabeledPoint{}, err
	}
	return p.LabeledPoint()
}

// classIndex returns the zero-based class of a class field such as "1st".
// Only the leading character is inspected.
func classIndex(class string) (int, error) {
	if class == "" || class[0] < '0' || class[0] > '9' {
		return 0, &StructuralError{Reason: "class field has no leading digit"}
	}
	digit := int(class[0] - '0')
	if digit < 1 || digit > 3 {
		return 0, &ValidationError{Field: "class", Value: class}
	}
	return digit - 1, nil
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
