package web

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sprinkler-controller/internal/history"
)

// HistoryJSON is the JSON representation of the run log.
type HistoryJSON struct {
	Runs []RunJSON `json:"runs"`
}

// RunJSON is one completed run.
type RunJSON struct {
	Zone            int    `json:"zone"`
	Name            string `json:"name"`
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationSeconds int64  `json:"duration_seconds"`
	Cause           string `json:"cause"`
}

func formatHistory(runs []history.Run) []byte {
	hj := HistoryJSON{Runs: make([]RunJSON, len(runs))}
	for i, r := range runs {
		hj.Runs[i] = RunJSON{
			Zone:            r.Zone,
			Name:            r.Name,
			Start:           r.Start.UTC().Format(time.RFC3339),
			End:             r.End.UTC().Format(time.RFC3339),
			DurationSeconds: int64(r.Duration().Truncate(time.Second).Seconds()),
			Cause:           string(r.Cause),
		}
	}

	data, _ := json.MarshalIndent(hj, "", "  ")
	return data
}
