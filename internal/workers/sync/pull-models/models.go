// internal/workers/sync/pull-models/models.go
package pullmodels

import (
	"time"

	"survey-sync/internal/models"
)

// Where a collection in the output came from.
const (
	SourceRemote   = "remote"
	SourceLocal    = "local"
	SourceFallback = "fallback"
)

// Progress receives boot-screen updates. The last call of a run passes nil
// counts: the load phase is over and the cache phase starts.
type Progress func(message string, completed, total *int)

type CollectionResult struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Rows   int    `json:"rows"`
	Error  string `json:"error,omitempty"`
}

type Output struct {
	RunID       string                       `json:"runId"`
	Online      bool                         `json:"online"`
	StartedAt   time.Time                    `json:"startedAt"`
	FinishedAt  time.Time                    `json:"finishedAt"`
	Collections map[string]models.Collection `json:"-"`
	Results     []CollectionResult           `json:"collections"`
}
