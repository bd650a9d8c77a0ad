package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type placeBidRequest struct {
	PlayerID string `json:"player_id" validate:"required"`
	TeamID   string `json:"team_id" validate:"required"`
	Amount   int    `json:"amount" validate:"gt=0"`
}

type playerRequest struct {
	PlayerID string `json:"player_id" validate:"required"`
}

type reopenRequest struct {
	Operator string `json:"operator" validate:"required,max=100"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

func (s *Server) getAuction(w http.ResponseWriter, r *http.Request) {
	snap, err := s.surface.CurrentAuctionState(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) placeBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.surface.PlaceBid(r.Context(), req.PlayerID, req.TeamID, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) listBids(w http.ResponseWriter, r *http.Request) {
	bids, err := s.surface.BidHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

func (s *Server) startAuction(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.engine.StartAuction(r.Context(), req.PlayerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) endAuction(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.EndAuction(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) resolveSale(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sale, err := s.engine.ResolvePlayerSale(r.Context(), req.PlayerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (s *Server) markUnsold(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := s.engine.MarkUnsold(r.Context(), req.PlayerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"player_id": req.PlayerID, "status": string(status)})
}

func (s *Server) advanceRound(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.AdvanceRound(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}

func (s *Server) reopenMainRound(w http.ResponseWriter, r *http.Request) {
	var req reopenRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.ReopenMainRound(r.Context(), req.Operator, req.Reason); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) auditLog(w http.ResponseWriter, r *http.Request) {
	evts, err := s.engine.AuditLog(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evts)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	issues, err := s.engine.Reconcile(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balanced": len(issues) == 0, "issues": issues})
}
