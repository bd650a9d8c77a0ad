package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jensholdgaard/player-auction/internal/roster"
	"github.com/jensholdgaard/player-auction/internal/store"
)

const maxImportSize = 10 << 20

type teamRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	OwnerName    string `json:"owner_name" validate:"max=100"`
	OwnerContact string `json:"owner_contact" validate:"max=200"`
	Wallet       int    `json:"wallet" validate:"gte=0"`
}

type teamProfileRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	OwnerName    string `json:"owner_name" validate:"max=100"`
	OwnerContact string `json:"owner_contact" validate:"max=200"`
}

type playerProfileRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Role         string `json:"role" validate:"max=50"`
	BattingStyle string `json:"batting_style" validate:"max=50"`
	BowlingStyle string `json:"bowling_style" validate:"max=50"`
	BasePrice    int    `json:"base_price" validate:"gt=0"`
}

func (p playerProfileRequest) profile() store.PlayerProfile {
	return store.PlayerProfile{
		Name:         p.Name,
		Role:         p.Role,
		BattingStyle: p.BattingStyle,
		BowlingStyle: p.BowlingStyle,
		BasePrice:    p.BasePrice,
	}
}

func (s *Server) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.roster.ListPlayers(r.Context(), store.PlayerStatus(r.URL.Query().Get("status")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *Server) teamSummaries(w http.ResponseWriter, r *http.Request) {
	sums, err := s.roster.TeamSummaries(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.roster.CreateTeam(r.Context(), roster.TeamInput{
		Name:         req.Name,
		OwnerName:    req.OwnerName,
		OwnerContact: req.OwnerContact,
		Wallet:       req.Wallet,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamProfileRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.roster.UpdateTeamProfile(r.Context(), chi.URLParam(r, "id"), req.Name, req.OwnerName, req.OwnerContact); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createPlayer(w http.ResponseWriter, r *http.Request) {
	var req playerProfileRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.roster.CreatePlayer(r.Context(), req.profile())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updatePlayer(w http.ResponseWriter, r *http.Request) {
	var req playerProfileRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.roster.UpdatePlayerProfile(r.Context(), chi.URLParam(r, "id"), req.profile()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importPlayers accepts the file either as a multipart "file" field or as the raw body.
func (s *Server) importPlayers(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)

	var body io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		f, _, err := r.FormFile("file")
		if err != nil {
			s.writeError(w, r, errors.Join(errInvalidRequest, err))
			return
		}
		defer f.Close()
		body = f
	}

	res, err := s.roster.Import(r.Context(), body)
	switch {
	case errors.Is(err, roster.ErrImportRejected):
		writeJSON(w, http.StatusBadRequest, res)
	case err != nil:
		s.writeError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, res)
	}
}
