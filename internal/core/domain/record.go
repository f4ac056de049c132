package domain

import "strings"

// CanonicalLabel is one of the three normalized sentiment classes.
type CanonicalLabel string

const (
	LabelPositive CanonicalLabel = "pos"
	LabelNegative CanonicalLabel = "neg"
	LabelNeutral  CanonicalLabel = "neu"
)

const (
	MaxSourceLength = 256
	MaxLabelLength  = 64
)

// Record is a caller-submitted text row. Label is stored exactly as given.
type Record struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Label  *string `json:"label,omitempty"`
}

// LabeledText is the projection of a persisted record the aggregator reads.
type LabeledText struct {
	Text  string
	Label *string
}

type IngestResult struct {
	Ingested int `json:"ingested"`
}

// NormalizeLabel maps a raw label onto a canonical class. Anything it does
// not recognise, including a missing label, is neutral.
func NormalizeLabel(raw *string) CanonicalLabel {
	if raw == nil {
		return LabelNeutral
	}
	switch strings.ToLower(strings.TrimSpace(*raw)) {
	case "pos", "positive", "+":
		return LabelPositive
	case "neg", "negative", "-":
		return LabelNegative
	default:
		return LabelNeutral
	}
}
