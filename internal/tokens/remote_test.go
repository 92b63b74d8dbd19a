package tokens

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/token-recycle/internal/models"
)

func TestRemoteLedgerAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if !strings.EqualFold(r.URL.Path, "/accounts/"+aliceDead.Hex()) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(models.TokenAccount{Address: aliceDead, Mint: mintDead, Owner: alice, Balance: 42})
	}))
	defer srv.Close()

	l := NewRemoteLedger(srv.URL+"/", time.Second)
	acc, err := l.Account(context.Background(), aliceDead)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), acc.Balance)
	assert.Equal(t, mintDead, acc.Mint)

	_, err = l.Account(context.Background(), alice)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRemoteLedgerBurnAndTransfer(t *testing.T) {
	auth := NewProgramAuthority(testProgram, DefaultAuthoritySeed)

	var burns, transfers int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/burn":
			atomic.AddInt32(&burns, 1)
			var req burnRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, aliceDead, req.Account)
			assert.Equal(t, alice, req.Owner)
			assert.Equal(t, uint64(3_000_000), req.Amount)
			w.WriteHeader(http.StatusOK)
		case "/transfer":
			atomic.AddInt32(&transfers, 1)
			var req transferRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, auth.Address(), req.Authority)
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(ledgerError{Code: "insufficient_funds", Message: "reserve empty"})
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	l := NewRemoteLedger(srv.URL, time.Second)
	ctx := context.Background()

	require.NoError(t, l.Burn(ctx, aliceDead, alice, 3_000_000))

	err := l.Transfer(ctx, reserve, aliceReward, auth, 3)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "reserve empty")

	// no automatic retry on non-idempotent operations
	assert.Equal(t, int32(1), atomic.LoadInt32(&burns))
	assert.Equal(t, int32(1), atomic.LoadInt32(&transfers))

	err = l.RevertBurn(ctx, aliceDead, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "418")
}

func TestRemoteLedgerClassifiesFailures(t *testing.T) {
	auth := NewProgramAuthority(testProgram, DefaultAuthoritySeed)
	status := map[string]int{
		"/burn":            http.StatusBadRequest,
		"/transfer":        http.StatusServiceUnavailable,
		"/burn/revert":     http.StatusTooManyRequests,
		"/transfer/revert": http.StatusConflict,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status[r.URL.Path])
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	l := NewRemoteLedger(srv.URL, time.Second)
	ctx := context.Background()

	err := l.Burn(ctx, aliceDead, alice, 1)
	assert.ErrorIs(t, err, ErrRejected)
	assert.True(t, IsRejected(err))

	err = l.Transfer(ctx, reserve, aliceReward, auth, 1)
	require.Error(t, err)
	assert.False(t, IsRejected(err), "5xx may have been applied")

	err = l.RevertBurn(ctx, aliceDead, 1)
	require.Error(t, err)
	assert.False(t, IsRejected(err), "429 may be retried later")

	assert.True(t, IsRejected(l.RevertTransfer(ctx, reserve, aliceReward, 1)))

	// transport failures leave the outcome unknown
	dead := NewRemoteLedger("http://127.0.0.1:1", 200*time.Millisecond)
	err = dead.Burn(ctx, aliceDead, alice, 1)
	require.Error(t, err)
	assert.False(t, IsRejected(err))

	timeout, cancel := context.WithTimeout(ctx, time.Nanosecond)
	defer cancel()
	<-timeout.Done()
	err = l.Burn(timeout, aliceDead, alice, 1)
	require.Error(t, err)
	assert.False(t, IsRejected(err))
}
