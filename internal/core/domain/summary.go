package domain

// SentimentSummary holds canonical label counts. N always equals Pos+Neg+Neu.
type SentimentSummary struct {
	N   int `json:"n"`
	Pos int `json:"pos"`
	Neg int `json:"neg"`
	Neu int `json:"neu"`
}

// Observe counts one row.
func (s *SentimentSummary) Observe(label *string) {
	s.N++
	switch NormalizeLabel(label) {
	case LabelPositive:
		s.Pos++
	case LabelNegative:
		s.Neg++
	default:
		s.Neu++
	}
}

// Summarize counts canonical labels across rows. Text is never inspected.
func Summarize(rows []LabeledText) SentimentSummary {
	var summary SentimentSummary
	for _, row := range rows {
		summary.Observe(row.Label)
	}
	return summary
}
