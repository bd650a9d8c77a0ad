package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/bidding"
	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/config"
	"github.com/jensholdgaard/player-auction/internal/health"
	"github.com/jensholdgaard/player-auction/internal/httpapi"
	"github.com/jensholdgaard/player-auction/internal/ledger"
	"github.com/jensholdgaard/player-auction/internal/notify"
	"github.com/jensholdgaard/player-auction/internal/roster"
	"github.com/jensholdgaard/player-auction/internal/store"
	"github.com/jensholdgaard/player-auction/internal/store/memory"
)

const adminToken = "s3cret"

type fixture struct {
	repos  *store.Repositories
	engine *auction.Engine
	hub    *httpapi.Hub
	srv    *httptest.Server
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clk := clock.Real{}
	tp := noop.NewTracerProvider()
	mp := metricnoop.NewMeterProvider()
	logger := slog.Default()
	repos := memory.New(clk).Repositories()
	broker := notify.NewMemoryBroker()

	sess := auction.NewSession(repos.Sessions, broker, logger, tp)
	if _, err := sess.Init(ctx, config.AuctionConfig{MinBidIncrement: 100, UnsoldPriceReductionFactor: 0.5}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	eng, err := auction.NewEngine(repos, sess, auction.Policy{AllowSelfRaise: true}, logger, tp, mp)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	surface, err := bidding.New(eng, ledger.New(repos.Bids, broker, logger, tp, clk), notify.NewMemoryLocker(clk), bidding.Options{}, logger, tp, mp)
	if err != nil {
		t.Fatalf("bidding.New: %v", err)
	}
	hub := httpapi.NewHub(surface, logger)
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("hub.Start: %v", err)
	}
	hh := health.NewHandler(clk, health.PingChecker("database", pingFunc(repos.Ping)))
	hh.SetReady(true)

	srv := httptest.NewServer(httpapi.New(httpapi.Options{
		Engine:     eng,
		Surface:    surface,
		Roster:     roster.NewManager(repos, logger, tp),
		Hub:        hub,
		Health:     hh,
		AdminToken: token,
		Logger:     logger,
		Tracer:     tp,
	}).Router())
	t.Cleanup(srv.Close)

	return &fixture{repos: repos, engine: eng, hub: hub, srv: srv}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func (f *fixture) do(t *testing.T, method, path string, body any, admin bool) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func decodeInto[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decoding %s: %v", b, err)
	}
	return v
}

type errorBody struct {
	Code    string `json:"code"`
	Minimum int    `json:"minimum"`
	Wallet  *int   `json:"wallet"`
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		header   string
		value    string
		wantCode int
	}{
		{name: "missing token", token: adminToken, wantCode: http.StatusUnauthorized},
		{name: "wrong bearer", token: adminToken, header: "Authorization", value: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "bearer", token: adminToken, header: "Authorization", value: "Bearer " + adminToken, wantCode: http.StatusOK},
		{name: "api key", token: adminToken, header: "X-API-Key", value: adminToken, wantCode: http.StatusOK},
		{name: "admin disabled", token: "", header: "X-API-Key", value: "", wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.token)
			req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/admin/reconcile", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
		})
	}
}

func TestAuctionFlow(t *testing.T) {
	f := newFixture(t, adminToken)

	code, body := f.do(t, http.MethodPost, "/api/admin/teams", map[string]any{"name": "T1", "wallet": 10000}, true)
	if code != http.StatusCreated {
		t.Fatalf("create team: %d %s", code, body)
	}
	team := decodeInto[store.Team](t, body)

	code, body = f.do(t, http.MethodPost, "/api/admin/players", map[string]any{"name": "P1", "base_price": 1000}, true)
	if code != http.StatusCreated {
		t.Fatalf("create player: %d %s", code, body)
	}
	player := decodeInto[store.Player](t, body)

	bid := func(amount int) (int, []byte) {
		return f.do(t, http.MethodPost, "/api/auction/bids", map[string]any{
			"player_id": player.ID, "team_id": team.ID, "amount": amount,
		}, false)
	}

	if code, _ := bid(1000); code != http.StatusConflict {
		t.Errorf("bid before start = %d, want 409", code)
	}
	if code, body := f.do(t, http.MethodPost, "/api/admin/auction/start", map[string]any{"player_id": player.ID}, true); code != http.StatusOK {
		t.Fatalf("start: %d %s", code, body)
	}
	if code, body := bid(1000); code != http.StatusCreated {
		t.Fatalf("bid 1000: %d %s", code, body)
	}

	code, body = bid(1050)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("bid 1050 = %d, want 422", code)
	}
	if e := decodeInto[errorBody](t, body); e.Code != "bid_too_low" || e.Minimum != 1100 {
		t.Errorf("bid 1050 body = %+v", e)
	}

	code, body = bid(20000)
	if code != http.StatusPaymentRequired {
		t.Fatalf("bid 20000 = %d, want 402", code)
	}
	if e := decodeInto[errorBody](t, body); e.Wallet == nil || *e.Wallet != 10000 {
		t.Errorf("bid 20000 body = %+v", e)
	}

	if code, body := bid(1300); code != http.StatusCreated {
		t.Fatalf("bid 1300: %d %s", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/api/auction", nil, false)
	if code != http.StatusOK {
		t.Fatalf("state: %d %s", code, body)
	}
	snap := decodeInto[bidding.Snapshot](t, body)
	if snap.Highest == nil || snap.Highest.Amount != 1300 || snap.MinimumBid != 1400 || len(snap.Bids) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	code, body = f.do(t, http.MethodPost, "/api/admin/auction/resolve", map[string]any{"player_id": player.ID}, true)
	if code != http.StatusOK {
		t.Fatalf("resolve: %d %s", code, body)
	}
	if sale := decodeInto[auction.Sale](t, body); sale.Amount != 1300 || sale.TeamID != team.ID {
		t.Errorf("sale = %+v", sale)
	}

	code, body = f.do(t, http.MethodGet, "/api/teams", nil, false)
	if code != http.StatusOK {
		t.Fatalf("teams: %d %s", code, body)
	}
	sums := decodeInto[[]roster.TeamSummary](t, body)
	if len(sums) != 1 || sums[0].Team.Wallet != 8700 || sums[0].Spent != 1300 || sums[0].PlayerCount != 1 {
		t.Errorf("summaries = %+v", sums)
	}

	if code, _ := f.do(t, http.MethodPost, "/api/admin/auction/resolve", map[string]any{"player_id": player.ID}, true); code != http.StatusNotFound && code != http.StatusConflict {
		t.Errorf("second resolve = %d, want 404 or 409", code)
	}

	code, body = f.do(t, http.MethodGet, "/api/players/"+player.ID+"/bids", nil, false)
	if bids := decodeInto[[]store.Bid](t, body); code != http.StatusOK || len(bids) != 2 || bids[0].Amount != 1300 {
		t.Errorf("bids = %d %+v", code, bids)
	}

	code, body = f.do(t, http.MethodGet, "/api/admin/reconcile", nil, true)
	if got := decodeInto[map[string]any](t, body); code != http.StatusOK || got["balanced"] != true {
		t.Errorf("reconcile = %d %s", code, body)
	}
}

func TestRoundEndpoints(t *testing.T) {
	f := newFixture(t, adminToken)
	ctx := context.Background()
	p := &store.Player{Name: "P1", BasePrice: 2000}
	if err := f.repos.Players.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		path     string
		body     any
		wantCode int
	}{
		{path: "/api/admin/rounds/reopen", body: map[string]any{"operator": "ops", "reason": "retry"}, wantCode: http.StatusConflict},
		{path: "/api/admin/auction/unsold", body: map[string]any{"player_id": p.ID}, wantCode: http.StatusConflict},
		{path: "/api/admin/auction/start", body: map[string]any{"player_id": p.ID}, wantCode: http.StatusOK},
		{path: "/api/admin/rounds/advance", wantCode: http.StatusConflict},
		{path: "/api/admin/auction/unsold", body: map[string]any{"player_id": p.ID}, wantCode: http.StatusOK},
		{path: "/api/admin/auction/end", wantCode: http.StatusConflict},
		{path: "/api/admin/rounds/advance", wantCode: http.StatusOK},
		{path: "/api/admin/rounds/reopen", body: map[string]any{"operator": "ops"}, wantCode: http.StatusBadRequest},
		{path: "/api/admin/rounds/reopen", body: map[string]any{"operator": "ops", "reason": "retry"}, wantCode: http.StatusNoContent},
	}
	for _, st := range steps {
		body := st.body
		if body == nil {
			body = map[string]any{}
		}
		if code, out := f.do(t, http.MethodPost, st.path, body, true); code != st.wantCode {
			t.Errorf("POST %s = %d %s, want %d", st.path, code, out, st.wantCode)
		}
	}

	code, body := f.do(t, http.MethodGet, "/api/admin/audit", nil, true)
	if code != http.StatusOK {
		t.Fatalf("audit: %d", code)
	}
	if evts := decodeInto[[]map[string]any](t, body); len(evts) != 4 {
		t.Errorf("audit events = %d, want 4 (started, unsold, advanced, overridden)", len(evts))
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t, adminToken)

	tests := []struct {
		name  string
		path  string
		body  any
		admin bool
	}{
		{name: "bid without team", path: "/api/auction/bids", body: map[string]any{"player_id": "p", "amount": 100}},
		{name: "bid with zero amount", path: "/api/auction/bids", body: map[string]any{"player_id": "p", "team_id": "t", "amount": 0}},
		{name: "unknown field", path: "/api/auction/bids", body: map[string]any{"player_id": "p", "team_id": "t", "amount": 1, "x": 1}},
		{name: "team negative wallet", path: "/api/admin/teams", body: map[string]any{"name": "T", "wallet": -5}, admin: true},
		{name: "player without price", path: "/api/admin/players", body: map[string]any{"name": "P"}, admin: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, tt.path, tt.body, tt.admin)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d %s, want 400", code, body)
			}
		})
	}
}

func TestImportPlayers(t *testing.T) {
	const file = "name,role,price\nAsha,Bowler,2000\nBilal,Batter,oops\n"

	t.Run("raw body", func(t *testing.T) {
		f := newFixture(t, adminToken)
		req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/admin/players/import", bytes.NewBufferString(file))
		req.Header.Set("Content-Type", "text/csv")
		req.Header.Set("X-API-Key", adminToken)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d %s", resp.StatusCode, body)
		}
		res := decodeInto[roster.ImportResult](t, body)
		if res.Created != 2 || len(res.Warnings) != 1 {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("multipart", func(t *testing.T) {
		f := newFixture(t, adminToken)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("file", "players.csv")
		_, _ = fw.Write([]byte(file))
		_ = mw.Close()

		req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/admin/players/import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-API-Key", adminToken)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		players, _ := f.repos.Players.List(context.Background())
		if len(players) != 2 {
			t.Errorf("players = %d, want 2", len(players))
		}
	})

	t.Run("rejected", func(t *testing.T) {
		f := newFixture(t, adminToken)
		req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/admin/players/import", bytes.NewBufferString("role\nBowler\n"))
		req.Header.Set("X-API-Key", adminToken)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if res := decodeInto[roster.ImportResult](t, body); len(res.Errors) == 0 {
			t.Errorf("result = %+v, want errors", res)
		}
	})
}

func TestHealthRoutes(t *testing.T) {
	f := newFixture(t, adminToken)
	for _, path := range []string{"/healthz", "/readyz"} {
		if code, body := f.do(t, http.MethodGet, path, nil, false); code != http.StatusOK {
			t.Errorf("GET %s = %d %s", path, code, body)
		}
	}
}
