package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-escrow/internal/usecase"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
	maxBodyBytes       = 1 << 16
)

type joinRequest struct {
	signedRequest
	Stake string `json:"stake"`
}

type moveRequest struct {
	signedRequest
	Cell int `json:"cell"`
}

type faucetRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type balanceResponse struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
}

type nonceResponse struct {
	Address common.Address `json:"address"`
	Nonce   uint64         `json:"nonce"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (that *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	contract, err := that.game.Contract(r.Context())
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, contract)
}

func (that *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r.PathValue("address"))
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	balance, err := that.game.Balance(r.Context(), addr)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Address: addr, Balance: balance})
}

func (that *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r.PathValue("address"))
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	nonce, err := that.game.Nonce(r.Context(), addr)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, nonceResponse{Address: addr, Nonce: nonce})
}

func (that *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := decodeBody(w, r, &req); err != nil {
		that.writeError(w, r, err)
		return
	}

	addr, err := parseAddress(req.Address)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	balance, err := that.game.Fund(r.Context(), addr, amount)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Address: addr, Balance: balance})
}

func (that *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req signedRequest
	if err := decodeBody(w, r, &req); err != nil {
		that.writeError(w, r, err)
		return
	}

	caller, err := that.authorize(r, req, actionCreate, 0, "")
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	receipt, err := that.game.CreateGame(r.Context(), caller)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (that *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id, err := parseGameID(r)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	game, err := that.game.GetGame(r.Context(), id)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, game)
}

func (that *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	id, err := parseGameID(r)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	var req joinRequest
	if err = decodeBody(w, r, &req); err != nil {
		that.writeError(w, r, err)
		return
	}

	stake, err := parseAmount(req.Stake)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	caller, err := that.authorize(r, req.signedRequest, actionJoin, id, stake.String())
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	that.writeReceipt(w, r)(that.game.JoinGame(r.Context(), caller, id, stake))
}

func (that *Server) handleMakeTurn(w http.ResponseWriter, r *http.Request) {
	id, err := parseGameID(r)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	var req moveRequest
	if err = decodeBody(w, r, &req); err != nil {
		that.writeError(w, r, err)
		return
	}

	caller, err := that.authorize(r, req.signedRequest, actionMove, id, strconv.Itoa(req.Cell))
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	that.writeReceipt(w, r)(that.game.MakeTurn(r.Context(), caller, id, req.Cell))
}

func (that *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := that.signedGameAction(w, r, actionResign)
	if !ok {
		return
	}

	that.writeReceipt(w, r)(that.game.Resign(r.Context(), caller, id))
}

func (that *Server) handleClaimTimeout(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := that.signedGameAction(w, r, actionTimeout)
	if !ok {
		return
	}

	that.writeReceipt(w, r)(that.game.ClaimTimeout(r.Context(), caller, id))
}

func (that *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := that.signedGameAction(w, r, actionSettle)
	if !ok {
		return
	}

	that.writeReceipt(w, r)(that.game.Settle(r.Context(), caller, id))
}

func (that *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := parseUintParam(query.Get("from"), 0)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	limit, err := parseUintParam(query.Get("limit"), defaultEventsLimit)
	if err != nil {
		that.writeError(w, r, err)
		return
	}
	if limit == 0 || limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	events, err := that.game.Events(r.Context(), from, int64(limit))
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func (that *Server) handleGameEvents(w http.ResponseWriter, r *http.Request) {
	id, err := parseGameID(r)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	events, err := that.game.GameEvents(r.Context(), id)
	if err != nil {
		that.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// signedGameAction parses the game id and verifies a request without arguments.
func (that *Server) signedGameAction(w http.ResponseWriter, r *http.Request, action string) (uint64, common.Address, bool) {
	id, err := parseGameID(r)
	if err != nil {
		that.writeError(w, r, err)
		return 0, common.Address{}, false
	}

	var req signedRequest
	if err = decodeBody(w, r, &req); err != nil {
		that.writeError(w, r, err)
		return 0, common.Address{}, false
	}

	caller, err := that.authorize(r, req, action, id, "")
	if err != nil {
		that.writeError(w, r, err)
		return 0, common.Address{}, false
	}

	return id, caller, true
}

// authorize verifies the signature of req and spends its nonce.
func (that *Server) authorize(r *http.Request, req signedRequest, action string, gameID uint64, arg string) (common.Address, error) {
	caller, err := req.verify(req.message(that.contract, action, gameID, arg))
	if err != nil {
		return common.Address{}, err
	}

	if err = that.game.UseNonce(r.Context(), caller, req.Nonce); err != nil {
		return common.Address{}, err
	}

	return caller, nil
}

func (that *Server) writeReceipt(w http.ResponseWriter, r *http.Request) func(*usecase.Receipt, error) {
	return func(receipt *usecase.Receipt, err error) {
		if err != nil {
			that.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, receipt)
	}
}

func (that *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)

	if status == http.StatusInternalServerError {
		that.logger.Error("request failed",
			"request_id", w.Header().Get(requestIDHeader),
			"path", r.URL.Path,
			"error", err,
		)
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusOf maps an error class onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrInvalidState), errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %w", apperror.ErrInvalidInput, err)
	}

	return nil
}

func parseGameID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad game id %q", apperror.ErrInvalidInput, r.PathValue("id"))
	}

	return id, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q is not an address", apperror.ErrInvalidInput, s)
	}

	return common.HexToAddress(s), nil
}

// parseAmount accepts decimal or 0x-prefixed hex amounts below 2^256.
func parseAmount(s string) (*big.Int, error) {
	amount, ok := math.ParseBig256(s)
	if !ok || s == "" || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: bad amount %q", apperror.ErrInvalidInput, s)
	}

	return amount, nil
}

func parseUintParam(s string, def uint64) (uint64, error) {
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", apperror.ErrInvalidInput, s)
	}

	return v, nil
}
