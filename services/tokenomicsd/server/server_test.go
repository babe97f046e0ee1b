package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gravitywell/config"
	"gravitywell/core"
	"gravitywell/gateway/idempotency"
	"gravitywell/gateway/middleware"
	"gravitywell/native/bank"
	"gravitywell/storage"
	"gravitywell/storage/journal"
)

type fixture struct {
	handler   http.Handler
	engine    *core.Engine
	snapshots *storage.SnapshotStore
	journal   *journal.Journal
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	engineCfg, err := config.Default().EngineConfig()
	require.NoError(t, err)
	engine, err := core.New(engineCfg, bank.NewLedger())
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	j, err := journal.New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	snapshots := storage.NewSnapshotStore(storage.NewMemDB(), 8)
	replays, err := idempotency.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = replays.Close() })
	if cfg.RateLimit.RatePerSecond == 0 {
		cfg.RateLimit = middleware.RateLimit{RatePerSecond: 1000, Burst: 1000}
	}
	srv, err := New(cfg, Deps{Engine: engine, Snapshots: snapshots, Journal: j, Idempotency: replays})
	require.NoError(t, err)
	return &fixture{handler: srv.Handler(), engine: engine, snapshots: snapshots, journal: j}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out), res.Body.String())
	return out
}

func requireCode(t *testing.T, res *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, res.Code, res.Body.String())
	if code != "" {
		require.Equal(t, code, decodeBody[errorResponse](t, res).Code)
	}
}

func TestHealthAndInitialState(t *testing.T) {
	f := newFixture(t, Config{})
	res := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.NotEmpty(t, res.Header().Get("X-Request-ID"))

	res = f.do(t, http.MethodGet, "/v1/state", nil)
	require.Equal(t, http.StatusOK, res.Code)
	state := decodeBody[stateView](t, res)
	require.Equal(t, "0", state.Supply)
	require.Equal(t, "0.001", state.CurvePrice)
	require.Len(t, state.Buckets, 3)
	require.True(t, state.Buckets[0].Primary)
}

func TestBuyPersistsSnapshotAndJournal(t *testing.T) {
	f := newFixture(t, Config{})

	res := f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "alice", AmountIn: "100"}, "X-Subject", "alice")
	requireCode(t, res, http.StatusUnprocessableEntity, "insufficient_amount")

	res = f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "alice", Amount: "250"}, "X-Subject", "ops")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "250", decodeBody[balanceView](t, res).Foreign)

	res = f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "alice", AmountIn: "100"}, "X-Subject", "alice")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	trade := decodeBody[tradeView](t, res)
	require.Equal(t, "curve", trade.Route)
	require.Equal(t, "0.5", trade.Fee)
	require.NotNil(t, trade.Zap)

	res = f.do(t, http.MethodGet, "/v1/accounts/alice", nil)
	balance := decodeBody[balanceView](t, res)
	require.Equal(t, "150", balance.Foreign)
	require.Equal(t, trade.AmountOut, balance.Native)

	latest, err := f.snapshots.Latest()
	require.NoError(t, err)
	entries, err := f.journal.List(context.Background(), journal.Filter{Kind: "buy"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "alice", entries[0].Account)
	require.Equal(t, latest.Digest, entries[0].Digest)
	require.NotEmpty(t, entries[0].RequestID)

	res = f.do(t, http.MethodGet, "/v1/admin/journal?account=alice", nil, "X-Subject", "ops")
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, decodeBody[[]journalView](t, res), 2)
}

func TestSlippageFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "bob", Amount: "100"}, "X-Subject", "ops")
	before, err := f.engine.Snapshot()
	require.NoError(t, err)

	res := f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "bob", AmountIn: "50", MinOut: "1000000000000"}, "X-Subject", "bob")
	requireCode(t, res, http.StatusConflict, "slippage_exceeded")

	after, err := f.engine.Snapshot()
	require.NoError(t, err)
	require.Equal(t, before.Digest, after.Digest)
}

func TestQuoteValidation(t *testing.T) {
	f := newFixture(t, Config{})
	cases := []struct {
		name   string
		body   quoteRequest
		status int
		code   string
	}{
		{"bad direction", quoteRequest{Direction: "hold", Amount: "1"}, http.StatusBadRequest, "invalid_request"},
		{"missing amount", quoteRequest{Direction: "buy"}, http.StatusBadRequest, "invalid_request"},
		{"too precise", quoteRequest{Direction: "buy", Amount: "0.0000000000001"}, http.StatusBadRequest, "invalid_request"},
		{"below initial", quoteRequest{Direction: "buy", Amount: "2"}, http.StatusUnprocessableEntity, "insufficient_amount"},
		{"ok", quoteRequest{Direction: "buy", Amount: "20"}, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requireCode(t, f.do(t, http.MethodPost, "/v1/quote", tc.body), tc.status, tc.code)
		})
	}
}

func TestUnwindAuthorization(t *testing.T) {
	f := newFixture(t, Config{Operators: []string{"treasurer"}})
	f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "alice", Amount: "100"}, "X-Subject", "ops")
	res := f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "alice", AmountIn: "100"}, "X-Subject", "alice")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var growth bucketView
	for _, b := range decodeBody[[]bucketView](t, f.do(t, http.MethodGet, "/v1/buckets", nil)) {
		if b.ID == "growth" {
			growth = b
		}
	}
	require.NotEqual(t, "0", growth.LPTokens)

	requireCode(t, f.do(t, http.MethodPost, "/v1/admin/unwind", unwindRequest{Bucket: "nope", LP: "1"}, "X-Subject", "treasurer"), http.StatusNotFound, "unknown_bucket")
	requireCode(t, f.do(t, http.MethodPost, "/v1/admin/unwind", unwindRequest{Bucket: "growth", LP: growth.LPTokens}, "X-Subject", "ops"), http.StatusForbidden, "unauthorized")
	requireCode(t, f.do(t, http.MethodPost, "/v1/admin/unwind", unwindRequest{Bucket: "floor", LP: "1"}, "X-Subject", "treasurer"), http.StatusConflict, "bucket_locked")

	res = f.do(t, http.MethodPost, "/v1/admin/unwind", unwindRequest{Bucket: "growth", LP: growth.LPTokens, Recipient: "grants"}, "X-Subject", "treasurer")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	out := decodeBody[unwindView](t, res)
	require.Equal(t, "grants", out.Recipient)

	balance := decodeBody[balanceView](t, f.do(t, http.MethodGet, "/v1/accounts/grants", nil))
	require.Equal(t, out.Native, balance.Native)
	require.Equal(t, out.Foreign, balance.Foreign)
}

func TestPauseRouterRejectsTrades(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "alice", Amount: "100"}, "X-Subject", "ops")

	requireCode(t, f.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Module: "lending", Paused: true}, "X-Subject", "ops"), http.StatusBadRequest, "invalid_request")
	res := f.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Module: "router", Paused: true}, "X-Subject", "ops")
	require.Equal(t, http.StatusOK, res.Code)

	requireCode(t, f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "alice", AmountIn: "50"}, "X-Subject", "alice"), http.StatusServiceUnavailable, "paused")
	state := decodeBody[stateView](t, f.do(t, http.MethodGet, "/v1/state", nil))
	require.Equal(t, []string{"router"}, state.Paused)

	f.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Module: "router", Paused: false}, "X-Subject", "ops")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "alice", AmountIn: "50"}, "X-Subject", "alice").Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newFixture(t, Config{Auth: middleware.AuthConfig{Enabled: true, HMACSecret: "secret"}})
	res := f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "alice", Amount: "1"}, "X-Subject", "ops")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(t, http.MethodGet, "/v1/state", nil)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestPokeWithoutWork(t *testing.T) {
	f := newFixture(t, Config{})
	res := f.do(t, http.MethodPost, "/v1/poke", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	entries, err := f.journal.List(context.Background(), journal.Filter{Kind: "poke"})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestBuyWithIdempotencyKeyExecutesOnce(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "alice", Amount: "100"}, "X-Subject", "ops")

	first := f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "alice", AmountIn: "40"}, idempotency.HeaderKey, "order-1", "X-Subject", "alice")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "alice", AmountIn: "40"}, idempotency.HeaderKey, "order-1", "X-Subject", "alice")
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get(idempotency.HeaderReplay))
	require.JSONEq(t, first.Body.String(), second.Body.String())

	require.EqualValues(t, 1, f.engine.State().Swaps)
	balance := decodeBody[balanceView](t, f.do(t, http.MethodGet, "/v1/accounts/alice", nil))
	require.Equal(t, "60", balance.Foreign)
}

func TestJournalExportParquet(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "alice", Amount: "100"}, "X-Subject", "ops")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "alice", AmountIn: "40"}, "X-Subject", "alice").Code)

	res := f.do(t, http.MethodGet, "/v1/admin/journal/export?account=alice", nil, "X-Subject", "ops")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "2", res.Header().Get("X-Journal-Rows"))
	body := res.Body.Bytes()
	require.Equal(t, "PAR1", string(body[:4]))
	require.Equal(t, "PAR1", string(body[len(body)-4:]))
}

func bearer(t *testing.T, secret, subject string, scopes ...string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"scope": strings.Join(scopes, " "),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestTradesAreBoundToSubject(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "victim", Amount: "500"}, "X-Subject", "ops")

	requireCode(t, f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "victim", AmountIn: "500"}), http.StatusForbidden, "unauthorized")
	requireCode(t, f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "victim", AmountIn: "500"}, "X-Subject", "mallory"), http.StatusForbidden, "unauthorized")
	requireCode(t, f.do(t, http.MethodPost, "/v1/sell", tradeRequest{Account: "victim", AmountIn: "1"}, "X-Subject", "mallory"), http.StatusForbidden, "unauthorized")
	balance := decodeBody[balanceView](t, f.do(t, http.MethodGet, "/v1/accounts/victim", nil))
	require.Equal(t, "500", balance.Foreign)
	require.Zero(t, f.engine.State().Swaps)

	res := f.do(t, http.MethodPost, "/v1/buy", tradeRequest{AmountIn: "100"}, "X-Subject", "Victim")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "victim", decodeBody[tradeView](t, res).Account)
}

func TestTradesRequireTradeScope(t *testing.T) {
	const secret = "secret"
	f := newFixture(t, Config{Auth: middleware.AuthConfig{Enabled: true, HMACSecret: secret}})
	admin := bearer(t, secret, "ops", ScopeAdmin)
	res := f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "victim", Amount: "500"}, "Authorization", admin)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	anonymous := f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "victim", AmountIn: "500"})
	require.Equal(t, http.StatusUnauthorized, anonymous.Code)
	wrongScope := f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "victim", AmountIn: "500"}, "Authorization", admin)
	require.Equal(t, http.StatusForbidden, wrongScope.Code)
	requireCode(t, f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "victim", AmountIn: "500"}, "Authorization", bearer(t, secret, "mallory", ScopeTrade)), http.StatusForbidden, "unauthorized")

	balance := decodeBody[balanceView](t, f.do(t, http.MethodGet, "/v1/accounts/victim", nil))
	require.Equal(t, "500", balance.Foreign)

	res = f.do(t, http.MethodPost, "/v1/buy", tradeRequest{Account: "victim", AmountIn: "100"}, "Authorization", bearer(t, secret, "victim", ScopeTrade))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	balance = decodeBody[balanceView](t, f.do(t, http.MethodGet, "/v1/accounts/victim", nil))
	require.Equal(t, "400", balance.Foreign)
}

func TestIdempotencyKeysAreScopedToSubject(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "alice", Amount: "100"}, "X-Subject", "ops")
	f.do(t, http.MethodPost, "/v1/admin/credit", creditRequest{Account: "bob", Amount: "100"}, "X-Subject", "ops")

	first := f.do(t, http.MethodPost, "/v1/buy", tradeRequest{AmountIn: "40"}, idempotency.HeaderKey, "order-1", "X-Subject", "alice")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := f.do(t, http.MethodPost, "/v1/buy", tradeRequest{AmountIn: "40"}, idempotency.HeaderKey, "order-1", "X-Subject", "bob")
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	require.Empty(t, second.Header().Get(idempotency.HeaderReplay))
	require.Equal(t, "bob", decodeBody[tradeView](t, second).Account)
	require.EqualValues(t, 2, f.engine.State().Swaps)
}
