package vectorstore

import (
	"encoding/json"
	"time"

	"github.com/xxxsen/ragchat/internal/model"
)

type ObjectResult struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Err   error  `json:"-"`
}

type InsertReport struct {
	Objects []ObjectResult
	Elapsed time.Duration
}

func (r *InsertReport) Succeeded() []ObjectResult {
	out := make([]ObjectResult, 0, len(r.Objects))
	for _, o := range r.Objects {
		if o.Err == nil {
			out = append(out, o)
		}
	}
	return out
}

func (r *InsertReport) Failed() []ObjectResult {
	out := make([]ObjectResult, 0)
	for _, o := range r.Objects {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

func (r *InsertReport) HasErrors() bool {
	for _, o := range r.Objects {
		if o.Err != nil {
			return true
		}
	}
	return false
}

type objectFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// MarshalJSON reports counts, the ids written and the per-object failures.
func (r *InsertReport) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(r.Objects))
	failures := make([]objectFailure, 0)
	for _, o := range r.Objects {
		if o.Err != nil {
			failures = append(failures, objectFailure{Index: o.Index, Error: o.Err.Error()})
			continue
		}
		ids = append(ids, o.ID)
	}
	return json.Marshal(struct {
		Total     int             `json:"total"`
		Succeeded int             `json:"succeeded"`
		IDs       []string        `json:"ids"`
		Failed    []objectFailure `json:"failed"`
		ElapsedMS int64           `json:"elapsed_ms"`
	}{
		Total:     len(r.Objects),
		Succeeded: len(ids),
		IDs:       ids,
		Failed:    failures,
		ElapsedMS: r.Elapsed.Milliseconds(),
	})
}

// SearchOutcome separates "nothing matched" from "search did not run".
type SearchOutcome struct {
	Available bool
	Err       error
	results   []model.SearchResult
}

func (o SearchOutcome) Results() []model.SearchResult {
	if o.results == nil {
		return []model.SearchResult{}
	}
	return o.results
}
