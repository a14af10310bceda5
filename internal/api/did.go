package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/registry"
)

// maxDocumentBody bounds a PUT body; a URI is at most registry.MaxURILength.
const maxDocumentBody = 4 * registry.MaxURILength

type documentResponse struct {
	Address     ir.Address `json:"address"`
	DocumentURI string     `json:"document_uri"`
	Revision    uint64     `json:"revision"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type setDocumentRequest struct {
	DocumentURI string `json:"document_uri"`
}

func toDocumentResponse(d registry.Document) documentResponse {
	return documentResponse{
		Address:     d.Address,
		DocumentURI: d.URI,
		Revision:    d.Revision,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	doc, err := s.registry.Document(r.Context(), addr)
	if errors.Is(err, registry.ErrNotFound) {
		s.error(w, http.StatusNotFound, "no DID document for address")
		return
	}
	if err != nil {
		s.internalError(w, "load document", err)
		return
	}
	s.json(w, http.StatusOK, toDocumentResponse(doc))
}

// putDocument creates or updates the caller's document. The response is
// 201 when the write created the entry and 200 otherwise.
func (s *Server) putDocument(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	caller, err := ir.ParseAddress(r.Header.Get(CallerHeader))
	if err != nil {
		s.error(w, http.StatusUnauthorized, CallerHeader+" must carry the caller's address")
		return
	}

	var req setDocumentRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxDocumentBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	update, err := s.registry.UpdateDocument(r.Context(), caller, addr, req.DocumentURI)
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		s.error(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, registry.ErrInvalidDocument):
		s.error(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.internalError(w, "set document", err)
		return
	}

	code := http.StatusOK
	if update.Created {
		code = http.StatusCreated
	}
	s.json(w, code, toDocumentResponse(update.Document()))
}

// streamDocumentUpdates relays registry notifications as server-sent
// events until the client disconnects or the registry closes. An optional
// ?address= filter limits the stream to one address.
func (s *Server) streamDocumentUpdates(w http.ResponseWriter, r *http.Request) {
	var filter ir.Address
	if q := r.URL.Query().Get("address"); q != "" {
		addr, err := ir.ParseAddress(q)
		if err != nil {
			s.error(w, http.StatusBadRequest, err.Error())
			return
		}
		filter = addr
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id, updates := s.registry.Subscribe()
	defer s.registry.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, open := <-updates:
			if !open {
				return
			}
			if filter != "" && u.Address != filter {
				continue
			}
			data, err := json.Marshal(u)
			if err != nil {
				s.logger.Error("encode document update", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: document_updated\nid: %s/%d\ndata: %s\n\n", u.Address, u.Revision, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
