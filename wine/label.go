package wine

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrUnknownScheme = errors.New("unknown label scheme")
	ErrLabelIndex    = errors.New("label index out of range")
)

type Label string

const (
	Bad     Label = "BAD"
	Average Label = "AVERAGE"
	Good    Label = "GOOD"
)

// Title renders the label for display, e.g. "Average".
func (l Label) Title() string {
	return cases.Title(language.English).String(strings.ToLower(string(l)))
}

// Scheme is the closed label enumeration a classifier was trained against.
// Class index i corresponds to Labels()[i].
type Scheme struct {
	name   string
	labels []Label
}

var (
	Binary  = Scheme{name: "binary", labels: []Label{Bad, Good}}
	Ternary = Scheme{name: "ternary", labels: []Label{Bad, Average, Good}}
)

const DefaultSchemeName = "ternary"

func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "binary", "2", "two":
		return Binary, nil
	case "ternary", "3", "three":
		return Ternary, nil
	default:
		return Scheme{}, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
}

// SchemeFromLabels recovers a scheme from a persisted label list.
func SchemeFromLabels(labels []string) (Scheme, error) {
	for _, s := range []Scheme{Binary, Ternary} {
		if equalLabels(s.labels, labels) {
			return s, nil
		}
	}
	return Scheme{}, fmt.Errorf("%w: labels %v", ErrUnknownScheme, labels)
}

func equalLabels(a []Label, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if string(a[i]) != b[i] {
			return false
		}
	}
	return true
}

func (s Scheme) Name() string { return s.name }

func (s Scheme) Size() int { return len(s.labels) }

func (s Scheme) Labels() []Label {
	return append([]Label(nil), s.labels...)
}

func (s Scheme) LabelStrings() []string {
	out := make([]string, len(s.labels))
	for i, l := range s.labels {
		out[i] = string(l)
	}
	return out
}

// Classify maps a raw quality score to a class index:
// q >= 7 is GOOD; ternary adds AVERAGE for q == 6; everything else is BAD.
func (s Scheme) Classify(quality int) int {
	switch {
	case quality >= 7:
		return len(s.labels) - 1
	case quality == 6 && len(s.labels) == 3:
		return 1
	default:
		return 0
	}
}

func (s Scheme) LabelFor(quality int) Label {
	return s.labels[s.Classify(quality)]
}

func (s Scheme) Label(index int) (Label, error) {
	if index < 0 || index >= len(s.labels) {
		return "", fmt.Errorf("%w: %d for %s scheme", ErrLabelIndex, index, s.name)
	}
	return s.labels[index], nil
}
