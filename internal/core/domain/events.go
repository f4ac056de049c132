package domain

import "time"

type RecordsIngested struct {
	Count      int       `json:"count"`
	IngestedAt time.Time `json:"ingested_at"`
}
