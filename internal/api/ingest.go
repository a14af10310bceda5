package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/roach88/tally/internal/source"
)

// maxBatchBytes bounds a posted event batch.
const maxBatchBytes = 1 << 20

type ingestResponse struct {
	Batch    string   `json:"batch"`
	Accepted int      `json:"accepted"`
	Keys     []string `json:"keys"`
}

// postEvents validates an event batch (YAML or JSON, same schema as event
// files) and queues it. Application is asynchronous: 202 means queued, not
// applied.
func (s *Server) postEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.error(w, http.StatusRequestEntityTooLarge, "event batch too large")
			return
		}
		s.error(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	events, err := source.ParseEvents("request", body)
	if err != nil {
		s.error(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := ingestResponse{Batch: s.ingester.NewBatch(), Keys: make([]string, 0, len(events))}
	for _, ev := range events {
		ev.Batch = resp.Batch
		if !s.ingester.Enqueue(ev) {
			s.logger.Warn("ingest refused: engine stopped", "batch", resp.Batch, "accepted", resp.Accepted)
			s.error(w, http.StatusServiceUnavailable, "engine is shutting down")
			return
		}
		resp.Accepted++
		resp.Keys = append(resp.Keys, ev.Key)
	}

	s.logger.Info("event batch queued", "batch", resp.Batch, "events", resp.Accepted)
	s.json(w, http.StatusAccepted, resp)
}
