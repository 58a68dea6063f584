package pawn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/Additional-Code/pawnshop/internal/cache"
	"github.com/Additional-Code/pawnshop/internal/config"
	"github.com/Additional-Code/pawnshop/internal/dto"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
	repo "github.com/Additional-Code/pawnshop/internal/repository/pawn"
	service "github.com/Additional-Code/pawnshop/internal/service/pawn"
	"github.com/Additional-Code/pawnshop/internal/service/pawn/mocks"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
	Meta map[string]any `json:"meta"`
}

type testAPI struct {
	e   *echo.Echo
	svc *service.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	cfg := config.Config{
		Cache: config.Cache{Driver: "noop"},
		Pawn: config.Pawn{
			Decimals:        18,
			AddressPrefix:   "pawn",
			Settlement:      "refund",
			DepositDedupTTL: time.Hour,
		},
	}
	store := mocks.NewMockStore(gomock.NewController(t))
	store.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	fifteen, err := domain.ParseAmount("15000000000000000000")
	require.NoError(t, err)
	store.EXPECT().AcquireWriter(gomock.Any()).Return(new(repo.WriterLock), nil)
	store.EXPECT().Load(gomock.Any()).Return(repo.Snapshot{Pool: fifteen}, nil)

	noop, err := cache.NewStore(nil, cfg, zap.NewNop())
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := service.NewService(service.Params{
		Config: cfg,
		Store:  store,
		Cache:  noop,
		Logger: zap.NewNop(),
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })

	e := echo.New()
	Register(e, NewHandler(svc))
	return &testAPI{e: e, svc: svc}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestLoanLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.do(t, http.MethodPost, "/orders", `{"price":"1","itemName":"car","description":"its a car","grade":"silver"}`)
	require.Equal(t, http.StatusCreated, code)
	created := decode[dto.OrderResponse](t, env)
	assert.Equal(t, uint64(1), created.ID)
	assert.Equal(t, "1", created.Price)
	assert.Equal(t, "1000000000000000000", created.PriceWei)
	assert.Equal(t, "PENDING", created.Phase)

	code, env = api.do(t, http.MethodPost, "/orders/1/accept", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ACCEPTED", decode[dto.OrderResponse](t, env).Status)

	_, env = api.do(t, http.MethodGet, "/orders/1/escrow/address", "")
	addr := decode[dto.AddressResponse](t, env).Address
	require.True(t, strings.HasPrefix(addr, "pawn1"), addr)

	code, env = api.do(t, http.MethodPost, "/escrows/"+addr+"/deposits", `{"from":"pawner","amount":"1"}`)
	require.Equal(t, http.StatusOK, code)
	deposit := decode[dto.DepositResponse](t, env)
	assert.Equal(t, "STAKED", deposit.Status)
	assert.Equal(t, "3", deposit.Balance)

	code, _ = api.do(t, http.MethodPost, "/orders/1/shipping/pawner", `{"trackingNumber":1234}`)
	require.Equal(t, http.StatusOK, code)

	_, env = api.do(t, http.MethodGet, "/orders/1", "")
	assert.Equal(t, "0xea05319122ecf34a553669191848370ff785fe00ee6f01d3d9a8e4be7eee5249",
		decode[dto.OrderResponse](t, env).PawnerShippingHash)

	_, env = api.do(t, http.MethodPost, "/orders/1/shipping/verify", `{"party":"pawner","trackingNumber":"1234"}`)
	assert.True(t, decode[dto.VerifyShipmentResponse](t, env).Match)
	_, env = api.do(t, http.MethodPost, "/orders/1/shipping/verify", `{"party":"pawner","trackingNumber":"4321"}`)
	assert.False(t, decode[dto.VerifyShipmentResponse](t, env).Match)

	code, env = api.do(t, http.MethodPost, "/orders/1/shipping/owner/confirm", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.PhaseInProgress, decode[dto.OrderResponse](t, env).Phase)

	_, env = api.do(t, http.MethodGet, "/orders/1/escrow/vars", "")
	vars := decode[dto.VarsResponse](t, env)
	assert.Equal(t, uint64(15), vars.InterestPercent)
	assert.Equal(t, uint64(604800), vars.LoanLength)
	assert.Equal(t, vars.StartDate+604800, vars.ExpireDate)
	assert.Equal(t, "2", vars.OwnerStake)

	_, env = api.do(t, http.MethodPost, "/orders/1/repay-amount", "")
	assert.Equal(t, "1", decode[dto.RepayAmountResponse](t, env).RepayAmount)

	_, env = api.do(t, http.MethodGet, "/orders/1/escrow/balance", "")
	assert.Equal(t, "2", decode[dto.BalanceResponse](t, env).Balance)

	_, env = api.do(t, http.MethodGet, "/pool", "")
	assert.Equal(t, "13", decode[dto.BalanceResponse](t, env).Balance)

	_, env = api.do(t, http.MethodGet, "/orders?status=active", "")
	assert.Len(t, decode[[]dto.OrderResponse](t, env), 1)
	assert.EqualValues(t, 1, env.Meta["count"])
}

func TestPoolEndpoints(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.do(t, http.MethodPost, "/pool/fund", `{"amount":"0.5"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "15.5", decode[dto.BalanceResponse](t, env).Balance)

	code, env = api.do(t, http.MethodPost, "/pool/withdraw", `{"party":"owner","amount":"5.5"}`)
	require.Equal(t, http.StatusOK, code)
	pool := decode[dto.BalanceResponse](t, env)
	assert.Equal(t, "10", pool.Balance)
	assert.Equal(t, "10000000000000000000", pool.BalanceWei)
}

func TestErrorsMapToStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	_, _ = api.do(t, http.MethodPost, "/orders", `{"price":"1","grade":"GOLD"}`)
	_, _ = api.do(t, http.MethodPost, "/orders/1/accept", "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"bad id", http.MethodGet, "/orders/abc", "", http.StatusBadRequest, "invalid_input"},
		{"unknown order", http.MethodGet, "/orders/9", "", http.StatusNotFound, "not_found"},
		{"accept twice", http.MethodPost, "/orders/1/accept", "", http.StatusConflict, "invalid_state"},
		{"delete before stake", http.MethodPost, "/orders/1/delete", "", http.StatusConflict, "invalid_state"},
		{"overdrawn pool", http.MethodPost, "/pool/withdraw", `{"amount":"100"}`, http.StatusPaymentRequired, "insufficient_funds"},
		{"bad price", http.MethodPost, "/orders", `{"price":"1.5x","grade":"GOLD"}`, http.StatusBadRequest, "invalid_input"},
		{"too precise", http.MethodPost, "/pool/fund", `{"amount":"0.0000000000000000001"}`, http.StatusBadRequest, "invalid_input"},
		{"unknown grade", http.MethodPost, "/orders", `{"price":"1","grade":"BRONZE"}`, http.StatusBadRequest, "invalid_input"},
		{"bad tracking number", http.MethodPost, "/orders/1/shipping/pawner", `{"trackingNumber":"abc"}`, http.StatusBadRequest, "invalid_input"},
		{"bad filter", http.MethodGet, "/orders?status=archived", "", http.StatusBadRequest, "invalid_input"},
		{"unknown escrow", http.MethodGet, "/orders/9/escrow/vars", "", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.kind, env.Error.Kind, env.Error.Message)
		})
	}
}
