package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/token-recycle/internal/config"
	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/recycle"
	"github.com/smartdevs17/token-recycle/internal/storage"
	"github.com/smartdevs17/token-recycle/internal/tokens"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

var (
	programID  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	deadMint   = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	rewardMint = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	reserveAcc = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	ownerAddr  = common.HexToAddress("0x000000000000000000000000000000000000000a")
	userAddr   = common.HexToAddress("0x000000000000000000000000000000000000a001")
	sourceAcc  = common.HexToAddress("0x000000000000000000000000000000000000b001")
	rewardAcc  = common.HexToAddress("0x000000000000000000000000000000000000c001")
)

type testServer struct {
	t       *testing.T
	srv     *HTTPServer
	tokens  *tokens.MemoryLedger
	metrics *metrics.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	require.NoError(t, utils.InitLogger("error", "text", "discard", ""))

	store, err := storage.NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "server.db"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	m := metrics.NewManager()
	ledgerTokens := tokens.NewMemoryLedger()
	registry := recycle.NewRegistry(store, m)
	ledger := recycle.NewLedger(store, ledgerTokens, registry, nil, m, recycle.Options{
		ProgramID:      programID,
		AuthoritySeed:  tokens.DefaultAuthoritySeed,
		RewardMint:     rewardMint,
		ReserveAccount: reserveAcc,
		LockTimeout:    time.Second,
	})

	ledgerTokens.SetAccount(models.TokenAccount{Address: reserveAcc, Mint: rewardMint, Owner: ledger.Authority(), Balance: 1_000})
	ledgerTokens.SetAccount(models.TokenAccount{Address: sourceAcc, Mint: deadMint, Owner: userAddr, Balance: 50_000_000})
	ledgerTokens.SetAccount(models.TokenAccount{Address: rewardAcc, Mint: rewardMint, Owner: userAddr})

	srv, err := NewHTTPServer(&ServerConfig{EnableHealth: true, EnableMetrics: true}, store, registry, ledger, nil, m)
	require.NoError(t, err)

	return &testServer{t: t, srv: srv, tokens: ledgerTokens, metrics: m}
}

func (ts *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func (ts *testServer) createStation(id common.Address) *models.Station {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/v1/stations", map[string]interface{}{
		"id":          id.Hex(),
		"owner":       ownerAddr.Hex(),
		"name":        "Central Depot",
		"description": "Dead coins welcome",
		"latitude":    40.7128,
		"longitude":   -74.0060,
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	var station models.Station
	decode(ts.t, rec, &station)
	return &station
}

func disposeBody(amount uint64, severity int) map[string]interface{} {
	return map[string]interface{}{
		"user":                userAddr.Hex(),
		"source_token_type":   deadMint.Hex(),
		"source_account":      sourceAcc.Hex(),
		"user_reward_account": rewardAcc.Hex(),
		"amount":              amount,
		"severity":            severity,
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/health/detailed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	decode(t, rec, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health["components"], "storage")

	rec = ts.do(http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "recycle_http_requests_total")
}

func TestStationLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := common.HexToAddress("0x0000000000000000000000000000000000005001")
	station := ts.createStation(id)

	assert.Equal(t, id, station.ID)
	assert.Equal(t, uint64(0), station.RecycledCount)
	assert.True(t, station.IsActive)

	rec := ts.do(http.MethodGet, "/api/v1/stations/"+id.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/stations/"+id.Hex()+"?format=binary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	decoded, err := models.DecodeStation(id, rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Central Depot", decoded.Name)

	rec = ts.do(http.MethodGet, "/api/v1/stations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	rec = ts.do(http.MethodGet, "/api/v1/stations/nearby?lat=40.71&lon=-74.0&radius_km=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	// duplicate key
	rec = ts.do(http.MethodPost, "/api/v1/stations", map[string]interface{}{
		"id": id.Hex(), "owner": ownerAddr.Hex(), "name": "Again",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateStationErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
		code string
	}{
		{"bad owner", map[string]interface{}{"owner": "nope"}, utils.ErrCodeValidation},
		{"long name", map[string]interface{}{"owner": ownerAddr.Hex(), "name": strings.Repeat("x", 101)}, utils.ErrCodeInvalidName},
		{"long description", map[string]interface{}{"owner": ownerAddr.Hex(), "description": strings.Repeat("x", 201)}, utils.ErrCodeInvalidDescription},
		{"unknown field", map[string]interface{}{"owner": ownerAddr.Hex(), "colour": "green"}, utils.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/v1/stations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp map[string]interface{}
			decode(t, rec, &resp)
			assert.Equal(t, tt.code, resp["code"])
		})
	}
}

func TestDisposeEndpoint(t *testing.T) {
	ts := newTestServer(t)
	id := common.HexToAddress("0x0000000000000000000000000000000000005001")
	ts.createStation(id)

	rec := ts.do(http.MethodPost, "/api/v1/stations/"+id.Hex()+"/dispose", disposeBody(5_000_000, 100))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var record models.RecycleRecord
	decode(t, rec, &record)
	assert.Equal(t, uint64(10), record.Reward)
	assert.Equal(t, uint64(100), record.ExperiencePoints)
	assert.Equal(t, uint64(45_000_000), ts.tokens.Balance(sourceAcc))

	rec = ts.do(http.MethodGet, "/api/v1/records/"+record.ID+"?format=binary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.Bytes(), models.RecordEncodedSize)

	rec = ts.do(http.MethodGet, "/api/v1/stations/"+id.Hex()+"/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var activity struct {
		Records []*models.RecycleRecord `json:"records"`
	}
	decode(t, rec, &activity)
	require.Len(t, activity.Records, 1)
	assert.Equal(t, record.ID, activity.Records[0].ID)

	rec = ts.do(http.MethodGet, "/api/v1/users/"+userAddr.Hex()+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary map[string]interface{}
	decode(t, rec, &summary)
	assert.EqualValues(t, 1, summary["disposals"])
	assert.EqualValues(t, 100, summary["experience_points"])

	rec = ts.do(http.MethodGet, "/api/v1/users/"+userAddr.Hex()+"/records?limit=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/users/"+userAddr.Hex()+"/claim-xp", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/journals?status=committed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var journals struct {
		Count int `json:"count"`
	}
	decode(t, rec, &journals)
	assert.Equal(t, 1, journals.Count)

	rec = ts.do(http.MethodGet, "/api/v1/journals?status=committed", nil)
	var listed struct {
		Journals []*models.DisposalJournal `json:"journals"`
	}
	decode(t, rec, &listed)
	require.Len(t, listed.Journals, 1)

	rec = ts.do(http.MethodGet, "/api/v1/journals/"+listed.Journals[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail struct {
		ID             string               `json:"id"`
		Status         models.JournalStatus `json:"status"`
		Reconciliation []*models.LogEntry   `json:"reconciliation"`
	}
	decode(t, rec, &detail)
	assert.Equal(t, listed.Journals[0].ID, detail.ID)
	assert.Equal(t, models.JournalCommitted, detail.Status)
	assert.Empty(t, detail.Reconciliation)

	rec = ts.do(http.MethodGet, "/api/v1/journals/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/journals/reconciliation?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var notes struct {
		Count int `json:"count"`
	}
	decode(t, rec, &notes)
	assert.Equal(t, 0, notes.Count)
}

func TestDisposeEndpointErrors(t *testing.T) {
	ts := newTestServer(t)
	id := common.HexToAddress("0x0000000000000000000000000000000000005001")
	ts.createStation(id)
	path := "/api/v1/stations/" + id.Hex() + "/dispose"

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"zero amount", path, disposeBody(0, 50), http.StatusBadRequest, utils.ErrCodeInvalidAmount},
		{"severity too high", path, disposeBody(1_000_000, 101), http.StatusBadRequest, utils.ErrCodeInvalidSeverity},
		{"severity beyond a byte", path, disposeBody(1_000_000, 300), http.StatusBadRequest, utils.ErrCodeInvalidSeverity},
		{"unknown station", "/api/v1/stations/0x0000000000000000000000000000000000005002/dispose",
			disposeBody(1_000_000, 50), http.StatusNotFound, utils.ErrCodeNotFound},
		{"insufficient balance", path, disposeBody(60_000_000, 50), http.StatusUnprocessableEntity, utils.ErrCodeBurnFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			var resp map[string]interface{}
			decode(t, rec, &resp)
			assert.Equal(t, tt.code, resp["code"])
		})
	}

	body := disposeBody(1_000_000, 50)
	body["user"] = ownerAddr.Hex()
	rec := ts.do(http.MethodPost, path, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/stations/not-an-address", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/records/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisposeEndpointChecksAmountAndSeverityFirst(t *testing.T) {
	ts := newTestServer(t)
	id := common.HexToAddress("0x0000000000000000000000000000000000005001")
	ts.createStation(id)
	path := "/api/v1/stations/" + id.Hex() + "/dispose"

	tests := []struct {
		name string
		body map[string]interface{}
		code string
	}{
		{"zero amount before addresses", map[string]interface{}{"amount": 0, "severity": 50}, utils.ErrCodeInvalidAmount},
		{"missing amount", map[string]interface{}{"severity": 50}, utils.ErrCodeInvalidAmount},
		{"negative amount", func() map[string]interface{} {
			b := disposeBody(1, 50)
			b["amount"] = -1
			return b
		}(), utils.ErrCodeInvalidAmount},
		{"fractional amount", func() map[string]interface{} {
			b := disposeBody(1, 50)
			b["amount"] = 1.5
			return b
		}(), utils.ErrCodeInvalidAmount},
		{"amount wins over severity", map[string]interface{}{"amount": -5, "severity": 0}, utils.ErrCodeInvalidAmount},
		{"severity before addresses", map[string]interface{}{"amount": 1_000_000, "severity": 0}, utils.ErrCodeInvalidSeverity},
		{"negative severity", func() map[string]interface{} {
			b := disposeBody(1_000_000, 50)
			b["severity"] = -1
			return b
		}(), utils.ErrCodeInvalidSeverity},
		{"addresses after numbers", map[string]interface{}{"amount": 1_000_000, "severity": 50}, utils.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var resp map[string]interface{}
			decode(t, rec, &resp)
			assert.Equal(t, tt.code, resp["code"])
		})
	}

	assert.Equal(t, 0, ts.tokens.Calls(tokens.OpBurn))
	assert.Equal(t, uint64(50_000_000), ts.tokens.Balance(sourceAcc))
}

func TestStatusForCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusForCode(utils.ErrCodeAccountMismatch))
	assert.Equal(t, http.StatusNotFound, StatusForCode(utils.ErrCodeNotFound))
	assert.Equal(t, http.StatusConflict, StatusForCode(utils.ErrCodeConflict))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusForCode(utils.ErrCodeTransferFailed))
	assert.Equal(t, http.StatusInternalServerError, StatusForCode(utils.ErrCodeCompensation))
}
