package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
)

type projectResponse struct {
	ir.Project
	Milestones []ir.Milestone `json:"milestones"`
}

type donorResponse struct {
	ir.Donor
	Contributions []ir.Contribution `json:"contributions"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		s.error(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	resp := map[string]any{"status": "ok"}
	if s.ingester != nil {
		resp["queued"] = s.ingester.QueueLen()
		resp["seq"] = s.ingester.Seq()
	}
	s.json(w, http.StatusOK, resp)
}

// addressParam parses the {address} route parameter, writing a 400 on
// failure.
func (s *Server) addressParam(w http.ResponseWriter, r *http.Request) (ir.Address, bool) {
	addr, err := ir.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.error(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return addr, true
}

// loadProject writes 404 for unknown projects and 500 for store errors.
func (s *Server) loadProject(ctx context.Context, w http.ResponseWriter, addr ir.Address) (ir.Project, bool) {
	p, err := s.store.Project(ctx, addr)
	if aggregate.IsNotFound(err) {
		s.error(w, http.StatusNotFound, "project not found")
		return p, false
	}
	if err != nil {
		s.internalError(w, "load project", err)
		return p, false
	}
	return p, true
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	s.error(w, http.StatusInternalServerError, op+" failed")
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	p, ok := s.loadProject(r.Context(), w, addr)
	if !ok {
		return
	}
	milestones, err := s.store.Milestones(r.Context(), addr)
	if err != nil {
		s.internalError(w, "list milestones", err)
		return
	}
	s.json(w, http.StatusOK, projectResponse{Project: p, Milestones: nonNil(milestones)})
}

func (s *Server) getProjectDonors(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	if _, ok := s.loadProject(r.Context(), w, addr); !ok {
		return
	}
	donors, err := s.store.ProjectDonors(r.Context(), addr)
	if err != nil {
		s.internalError(w, "list donors", err)
		return
	}
	s.json(w, http.StatusOK, nonNil(donors))
}

func (s *Server) getProjectContributions(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	if _, ok := s.loadProject(r.Context(), w, addr); !ok {
		return
	}
	contributions, err := s.store.ProjectContributions(r.Context(), addr)
	if err != nil {
		s.internalError(w, "list contributions", err)
		return
	}
	s.json(w, http.StatusOK, nonNil(contributions))
}

func (s *Server) getProjectMilestones(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	// Milestones can be provisioned before the first donation creates the
	// project, so an unknown project is not a 404 here.
	milestones, err := s.store.Milestones(r.Context(), addr)
	if err != nil {
		s.internalError(w, "list milestones", err)
		return
	}
	s.json(w, http.StatusOK, nonNil(milestones))
}

func (s *Server) getDonor(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	d, err := s.store.Donor(r.Context(), addr)
	if aggregate.IsNotFound(err) {
		s.error(w, http.StatusNotFound, "donor not found")
		return
	}
	if err != nil {
		s.internalError(w, "load donor", err)
		return
	}
	contributions, err := s.store.DonorContributions(r.Context(), addr)
	if err != nil {
		s.internalError(w, "list contributions", err)
		return
	}
	s.json(w, http.StatusOK, donorResponse{Donor: d, Contributions: nonNil(contributions)})
}

// nonNil keeps empty lists encoding as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
