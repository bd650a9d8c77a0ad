package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/bidding"
	"github.com/jensholdgaard/player-auction/internal/roster"
	"github.com/jensholdgaard/player-auction/internal/store"
)

var errInvalidRequest = errors.New("invalid request")

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Minimum is set on bid_too_low.
	Minimum int `json:"minimum,omitempty"`
	// Wallet is set on insufficient_funds.
	Wallet *int `json:"wallet,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, errorBody{Code: errCode, Message: msg})
}

// writeError maps domain errors to status codes. Anything unrecognised is an
// infrastructure failure and reported as unavailable without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := classify(err)
	if code == http.StatusServiceUnavailable {
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("route", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeJSON(w, code, body)
}

func classify(err error) (int, errorBody) {
	var tooLow *auction.BidTooLowError
	var funds *auction.InsufficientFundsError

	switch {
	case errors.As(err, &tooLow):
		return http.StatusUnprocessableEntity, errorBody{Code: "bid_too_low", Message: err.Error(), Minimum: tooLow.Minimum}
	case errors.Is(err, auction.ErrBidTooLow):
		return http.StatusUnprocessableEntity, errorBody{Code: "bid_too_low", Message: err.Error()}
	case errors.Is(err, auction.ErrSameBidder):
		return http.StatusUnprocessableEntity, errorBody{Code: "same_bidder", Message: err.Error()}
	case errors.As(err, &funds):
		wallet := funds.Wallet
		return http.StatusPaymentRequired, errorBody{Code: "insufficient_funds", Message: err.Error(), Wallet: &wallet}
	case errors.Is(err, auction.ErrInsufficientFunds):
		return http.StatusPaymentRequired, errorBody{Code: "insufficient_funds", Message: err.Error()}
	case errors.Is(err, auction.ErrNoBids):
		return http.StatusConflict, errorBody{Code: "no_bids", Message: err.Error()}
	case errors.Is(err, auction.ErrInvalidState):
		return http.StatusConflict, errorBody{Code: "invalid_state", Message: err.Error()}
	case errors.Is(err, auction.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()}
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, errorBody{Code: "conflict", Message: err.Error()}
	case errors.Is(err, errInvalidRequest), errors.Is(err, roster.ErrInvalidInput), errors.Is(err, roster.ErrImportRejected):
		return http.StatusBadRequest, errorBody{Code: "invalid_request", Message: err.Error()}
	case errors.Is(err, bidding.ErrBusy):
		return http.StatusServiceUnavailable, errorBody{Code: "busy", Message: err.Error()}
	default:
		return http.StatusServiceUnavailable, errorBody{Code: "unavailable", Message: "system unavailable"}
	}
}

func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	if err := s.validator.StructCtx(r.Context(), dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}
