// Package admin exposes the bot's administrative operations over HTTP.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/types"
	"go.uber.org/zap"
)

const requestLimit = 1 << 16

// Venues is the part of the venue registry the admin surface manages
type Venues interface {
	List() []types.Venue
	Toggle(id string, active bool) error
}

// Engine is the part of the arbitrage engine the admin surface manages
type Engine interface {
	Address() common.Address
	Pause()
	Unpause()
	Paused() bool
	Withdraw(token, to common.Address) (*big.Int, error)
	Ledger() *ledger.ProfitLedger
}

// Stats reports the scanner's running totals
type Stats interface {
	Stats() arbitrage.ScanStats
}

// Config wires the handlers. Stats and Metrics are optional. Auth guards
// the routes that change venue or engine state.
type Config struct {
	Venues  Venues
	Engine  Engine
	Stats   Stats
	Metrics http.Handler
	Auth    AuthConfig
	Logger  *zap.Logger
}

type server struct {
	venues Venues
	engine Engine
	stats  Stats
	logger *zap.Logger
}

// NewRouter builds the admin HTTP handler
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Venues == nil || cfg.Engine == nil {
		return nil, fmt.Errorf("venues and engine must be specified")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	s := &server{
		venues: cfg.Venues,
		engine: cfg.Engine,
		stats:  cfg.Stats,
		logger: cfg.Logger,
	}

	auth := NewAuthenticator(cfg.Auth, cfg.Logger)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/venues", func(vr chi.Router) {
		vr.Get("/", s.listVenues)
		vr.With(auth.Middleware).Post("/{id}/toggle", s.toggleVenue)
	})
	r.Route("/engine", func(er chi.Router) {
		er.Get("/", s.engineStatus)
		er.Group(func(gr chi.Router) {
			gr.Use(auth.Middleware)
			gr.Post("/pause", s.pause)
			gr.Post("/unpause", s.unpause)
			gr.Post("/withdraw", s.withdraw)
		})
	})
	r.Get("/ledger", s.ledgerSummary)
	if s.stats != nil {
		r.Get("/stats", s.scanStats)
	}
	return r, nil
}

type venueResponse struct {
	ID     string `json:"id"`
	Model  string `json:"model"`
	Router string `json:"router"`
	Pool   string `json:"pool"`
	Active bool   `json:"active"`
}

func (s *server) listVenues(w http.ResponseWriter, r *http.Request) {
	venues := s.venues.List()
	resp := make([]venueResponse, 0, len(venues))
	for _, v := range venues {
		resp = append(resp, venueResponse{
			ID:     v.ID,
			Model:  v.Model.String(),
			Router: v.Router.Hex(),
			Pool:   v.Pool.Hex(),
			Active: v.Active,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type toggleRequest struct {
	Active *bool `json:"active"`
}

func (s *server) toggleVenue(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("active must be specified"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.venues.Toggle(id, *req.Active); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrVenueNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "active": *req.Active})
}

type engineResponse struct {
	Address string `json:"address"`
	Paused  bool   `json:"paused"`
}

func (s *server) engineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, engineResponse{
		Address: s.engine.Address().Hex(),
		Paused:  s.engine.Paused(),
	})
}

func (s *server) pause(w http.ResponseWriter, r *http.Request) {
	s.engine.Pause()
	s.engineStatus(w, r)
}

func (s *server) unpause(w http.ResponseWriter, r *http.Request) {
	s.engine.Unpause()
	s.engineStatus(w, r)
}

type withdrawRequest struct {
	Token string `json:"token"`
	To    string `json:"to"`
}

func (s *server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !common.IsHexAddress(req.Token) || !common.IsHexAddress(req.To) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("token and to must be hex addresses"))
		return
	}

	amount, err := s.engine.Withdraw(common.HexToAddress(req.Token), common.HexToAddress(req.To))
	if err != nil {
		s.logger.Error("Withdrawal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":  common.HexToAddress(req.Token).Hex(),
		"to":     common.HexToAddress(req.To).Hex(),
		"amount": amount.String(),
	})
}

type ledgerResponse struct {
	TotalExecutions     uint64            `json:"total_executions"`
	TotalProfit         string            `json:"total_profit"`
	LastExecutionHeight uint64            `json:"last_execution_height"`
	PerTokenProfit      map[string]string `json:"per_token_profit"`
}

func (s *server) ledgerSummary(w http.ResponseWriter, r *http.Request) {
	summary := s.engine.Ledger().Summary()
	perToken := make(map[string]string, len(summary.PerTokenProfit))
	for token, profit := range summary.PerTokenProfit {
		perToken[token.Hex()] = profit.String()
	}
	writeJSON(w, http.StatusOK, ledgerResponse{
		TotalExecutions:     summary.TotalExecutions,
		TotalProfit:         summary.TotalProfit.String(),
		LastExecutionHeight: summary.LastExecutionHeight,
		PerTokenProfit:      perToken,
	})
}

type statsResponse struct {
	OpportunitiesFound uint64 `json:"opportunities_found"`
	TradesExecuted     uint64 `json:"trades_executed"`
	FailedTrades       uint64 `json:"failed_trades"`
	TotalProfit        string `json:"total_profit"`
}

func (s *server) scanStats(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		OpportunitiesFound: stats.OpportunitiesFound,
		TradesExecuted:     stats.TradesExecuted,
		FailedTrades:       stats.FailedTrades,
		TotalProfit:        stats.TotalProfit.String(),
	})
}

func decodeRequest(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
