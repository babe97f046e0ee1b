package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"gravitywell/config"
	coreerrors "gravitywell/core/errors"
	"gravitywell/core/types"
	"gravitywell/gateway/middleware"
	"gravitywell/native/fees"
	"gravitywell/native/router"
	"gravitywell/native/treasury"
	"gravitywell/storage/journal"
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), coreerrors.ErrValidation)
}

func parseAmount(field, raw string, required bool) (*uint256.Int, error) {
	if strings.TrimSpace(raw) == "" {
		if required {
			return nil, badRequest("%s required", field)
		}
		return new(uint256.Int), nil
	}
	v, err := config.ParseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func requireAccount(raw string) (string, error) {
	id := types.NormalizeAccount(raw)
	if id == "" {
		return "", badRequest("account required")
	}
	return id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStateView(s.engine.State(), s.pauses.Paused()))
}

func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newBucketViews(s.engine.Buckets()))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id, err := requireAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{
		Account: id,
		Native:  amount(s.engine.Balance(id, types.AssetNative)),
		Foreign: amount(s.engine.Balance(id, types.AssetForeign)),
	})
}

type quoteRequest struct {
	Direction string `json:"direction"`
	Amount    string `json:"amount"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	direction := router.Direction(strings.ToLower(strings.TrimSpace(req.Direction)))
	if direction != router.DirectionBuy && direction != router.DirectionSell {
		s.writeError(w, r, badRequest("direction must be buy or sell"))
		return
	}
	amountIn, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.engine.Quote(direction, amountIn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteView(q))
}

type tradeRequest struct {
	Account  string `json:"account"`
	AmountIn string `json:"amountIn"`
	MinOut   string `json:"minOut"`
}

// tradingAccount binds a trade to the authenticated subject. An omitted
// account defaults to the subject; any other account is refused.
func tradingAccount(r *http.Request, requested string) (string, error) {
	subject := types.NormalizeAccount(middleware.Subject(r.Context()))
	if subject == "" {
		return "", fmt.Errorf("trade requires an authenticated subject: %w", coreerrors.ErrUnauthorized)
	}
	account := types.NormalizeAccount(requested)
	if account == "" {
		return subject, nil
	}
	if account != subject {
		return "", fmt.Errorf("subject %q may not trade account %q: %w", subject, account, coreerrors.ErrUnauthorized)
	}
	return account, nil
}

func (s *Server) decodeTrade(r *http.Request) (string, *uint256.Int, *uint256.Int, error) {
	var req tradeRequest
	if err := decode(r, &req); err != nil {
		return "", nil, nil, err
	}
	account, err := tradingAccount(r, req.Account)
	if err != nil {
		return "", nil, nil, err
	}
	amountIn, err := parseAmount("amountIn", req.AmountIn, true)
	if err != nil {
		return "", nil, nil, err
	}
	minOut, err := parseAmount("minOut", req.MinOut, false)
	if err != nil {
		return "", nil, nil, err
	}
	return account, amountIn, minOut, nil
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	account, amountIn, minOut, err := s.decodeTrade(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutations.Lock()
	defer s.mutations.Unlock()
	out, err := s.engine.Buy(account, amountIn, minOut)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view := newTradeView(out)
	s.persist(r.Context(), "buy", account, view)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	account, amountIn, minOut, err := s.decodeTrade(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutations.Lock()
	defer s.mutations.Unlock()
	out, err := s.engine.Sell(account, amountIn, minOut)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view := newTradeView(out)
	s.persist(r.Context(), "sell", account, view)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePoke(w http.ResponseWriter, r *http.Request) {
	s.mutations.Lock()
	defer s.mutations.Unlock()
	out, err := s.engine.Poke()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(out.Executed) > 0 {
		s.persist(r.Context(), "poke", "", out)
	}
	writeJSON(w, http.StatusOK, out)
}

type creditRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := requireAccount(req.Account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutations.Lock()
	defer s.mutations.Unlock()
	if err := s.engine.Credit(account, types.AssetForeign, value); err != nil {
		s.writeError(w, r, err)
		return
	}
	view := balanceView{
		Account: account,
		Native:  amount(s.engine.Balance(account, types.AssetNative)),
		Foreign: amount(s.engine.Balance(account, types.AssetForeign)),
	}
	s.logger.Info("account credited", "account", account, "amount", req.Amount, "operator", middleware.Subject(r.Context()))
	s.persist(r.Context(), "credit", account, view)
	writeJSON(w, http.StatusOK, view)
}

type unwindRequest struct {
	Bucket    string `json:"bucket"`
	LP        string `json:"lp"`
	Recipient string `json:"recipient"`
}

func (s *Server) handleUnwind(w http.ResponseWriter, r *http.Request) {
	var req unwindRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	lp, err := parseAmount("lp", req.LP, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := middleware.Subject(r.Context())
	s.mutations.Lock()
	defer s.mutations.Unlock()
	out, err := s.engine.Unwind(caller, req.Bucket, lp, req.Recipient)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view := newUnwindView(out)
	s.logger.Info("bucket unwound", "bucket", out.Bucket, "lp", view.LP, "operator", caller, "recipient", out.Recipient)
	s.persist(r.Context(), "unwind", out.Recipient, view)
	writeJSON(w, http.StatusOK, view)
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

var pausableModules = map[string]struct{}{
	router.ModuleName:   {},
	treasury.ModuleName: {},
	fees.ModuleName:     {},
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	module := strings.ToLower(strings.TrimSpace(req.Module))
	if _, ok := pausableModules[module]; !ok {
		s.writeError(w, r, badRequest("unknown module %q", req.Module))
		return
	}
	s.pauses.Set(module, req.Paused)
	s.logger.Warn("module pause toggled", "module", module, "paused", req.Paused, "operator", middleware.Subject(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"module": module, "paused": req.Paused})
}

type journalView struct {
	ID        string          `json:"id"`
	RequestID string          `json:"requestId,omitempty"`
	Kind      string          `json:"kind"`
	Account   string          `json:"account,omitempty"`
	Outcome   json.RawMessage `json:"outcome"`
	Digest    string          `json:"digest,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusOK, []journalView{})
		return
	}
	query := r.URL.Query()
	filter := journal.Filter{Kind: query.Get("kind"), Account: query.Get("account")}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, badRequest("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]journalView, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalView{
			ID:        e.ID.String(),
			RequestID: e.RequestID,
			Kind:      e.Kind,
			Account:   e.Account,
			Outcome:   json.RawMessage(e.Outcome),
			Digest:    e.Digest,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJournalExport(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, r, fmt.Errorf("journal not configured: %w", coreerrors.ErrValidation))
		return
	}
	query := r.URL.Query()
	filter := journal.Filter{Kind: query.Get("kind"), Account: query.Get("account")}
	var buf bytes.Buffer
	rows, err := s.journal.ExportParquet(r.Context(), &buf, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="journal.parquet"`)
	w.Header().Set("X-Journal-Rows", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
