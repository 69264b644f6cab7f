package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolwager/internal/entropy"
	"poolwager/internal/host"
	"poolwager/internal/models"
	"poolwager/internal/services"
)

type testAPI struct {
	t       *testing.T
	router  *gin.Engine
	service *services.LotteryService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := host.New(host.WithEntropy(entropy.Fixed(1)))
	service := services.NewLotteryService(h, services.WithAccountSeed(5))
	handler := NewHTTPHandler(service)

	r := gin.New()
	handler.RegisterPublicRoutes(r)
	identity := r.Group("/")
	identity.Use(handler.IdentityMiddleware())
	handler.RegisterIdentityRoutes(identity)

	return &testAPI{t: t, router: r, service: service}
}

func (a *testAPI) do(method, path string, from *models.Address, body any) (int, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if from != nil {
		req.Header.Set(IdentityHeader, from.String())
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func (a *testAPI) accounts(n int) []models.Address {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/accounts", nil, gin.H{"count": n, "funding": "10"})
	require.Equal(a.t, http.StatusCreated, code, body)
	raw := body["accounts"].([]any)
	out := make([]models.Address, len(raw))
	for i, v := range raw {
		out[i] = models.MustParseAddress(v.(string))
	}
	return out
}

func (a *testAPI) deploy(manager models.Address) string {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/contracts", &manager, nil)
	require.Equal(a.t, http.StatusCreated, code, body)
	assert.Equal(a.t, "0.01", body["minimumStake"])
	return body["contract"].(map[string]any)["address"].(string)
}

func TestLotteryFlow(t *testing.T) {
	api := newTestAPI(t)
	acc := api.accounts(3)
	manager, alice, bob := acc[0], acc[1], acc[2]
	addr := api.deploy(manager)

	code, body := api.do(http.MethodGet, "/contracts/"+addr+"/manager", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, manager.String(), body["manager"])

	for _, p := range []models.Address{alice, bob} {
		code, body = api.do(http.MethodPost, "/contracts/"+addr+"/enter", &p, gin.H{"value": "0.02"})
		require.Equal(t, http.StatusOK, code, body)
	}

	code, body = api.do(http.MethodGet, "/contracts/"+addr+"/players", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{alice.String(), bob.String()}, body["players"])

	code, body = api.do(http.MethodGet, "/contracts/"+addr+"/balance", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0.04", body["balance"])

	code, body = api.do(http.MethodPost, "/contracts/"+addr+"/pick-winner", &manager, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, bob.String(), body["winner"])
	assert.Equal(t, "0.04", body["amount"])

	code, body = api.do(http.MethodGet, "/accounts/"+bob.String(), nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "10.02", body["balance"])

	code, body = api.do(http.MethodGet, "/contracts/"+addr+"/players", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["players"])

	code, body = api.do(http.MethodGet, "/contracts", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["contracts"], 1)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	acc := api.accounts(2)
	manager, alice := acc[0], acc[1]
	addr := api.deploy(manager)

	t.Run("stake below minimum", func(t *testing.T) {
		code, body := api.do(http.MethodPost, "/contracts/"+addr+"/enter", &alice, gin.H{"value": "0.001"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body["error"], "insufficient stake")
		assert.Equal(t, models.StatusReverted, body["receipt"].(map[string]any)["status"])
	})

	t.Run("empty pool", func(t *testing.T) {
		code, _ := api.do(http.MethodPost, "/contracts/"+addr+"/pick-winner", &manager, nil)
		assert.Equal(t, http.StatusConflict, code)
	})

	t.Run("non-manager", func(t *testing.T) {
		code, _ := api.do(http.MethodPost, "/contracts/"+addr+"/pick-winner", &alice, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("missing identity", func(t *testing.T) {
		code, _ := api.do(http.MethodPost, "/contracts/"+addr+"/pick-winner", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("unknown contract", func(t *testing.T) {
		code, body := api.do(http.MethodGet, "/contracts/"+alice.String()+"/players", nil, nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Nil(t, body["receipt"])
	})

	t.Run("bad address", func(t *testing.T) {
		code, _ := api.do(http.MethodGet, "/contracts/nope/players", nil, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("bad value", func(t *testing.T) {
		code, _ := api.do(http.MethodPost, "/contracts/"+addr+"/enter", &alice, gin.H{"value": "lots"})
		assert.Equal(t, http.StatusBadRequest, code)
		code, _ = api.do(http.MethodPost, "/contracts/"+addr+"/enter", &alice, gin.H{})
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestGetABI(t *testing.T) {
	api := newTestAPI(t)
	code, body := api.do(http.MethodGet, "/abi", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Lottery", body["contractName"])
	assert.Len(t, body["abi"], 5)
}

func TestStreamEvents(t *testing.T) {
	api := newTestAPI(t)
	acc := api.accounts(1)

	srv := httptest.NewServer(api.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	addr := api.deploy(acc[0])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var receipt models.Receipt
	require.NoError(t, conn.ReadJSON(&receipt))
	assert.Equal(t, addr, receipt.Contract.String())
	assert.Equal(t, host.MethodConstructor, receipt.Method)
}
