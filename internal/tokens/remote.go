package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

// RemoteLedger talks to an external token ledger over JSON/HTTP.
// Requests are sent once: a burn or transfer that timed out may still have
// been applied. Only errors matching IsRejected are known to have no effect.
type RemoteLedger struct {
	endpoint   string
	httpClient *http.Client
	logger     *logrus.Entry
}

type burnRequest struct {
	Account common.Address `json:"account"`
	Owner   common.Address `json:"owner,omitempty"`
	Amount  uint64         `json:"amount"`
}

type transferRequest struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Authority common.Address `json:"authority,omitempty"`
	Amount    uint64         `json:"amount"`
}

type ledgerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewRemoteLedger creates a client for the ledger service at endpoint
func NewRemoteLedger(endpoint string, timeout time.Duration) *RemoteLedger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteLedger{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: utils.ComponentLogger("remote_ledger"),
	}
}

func (r *RemoteLedger) Account(ctx context.Context, address common.Address) (*models.TokenAccount, error) {
	var account models.TokenAccount
	if err := r.do(ctx, http.MethodGet, "/accounts/"+address.Hex(), nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *RemoteLedger) Burn(ctx context.Context, account, owner common.Address, amount uint64) error {
	return r.do(ctx, http.MethodPost, "/burn", burnRequest{Account: account, Owner: owner, Amount: amount}, nil)
}

func (r *RemoteLedger) Transfer(ctx context.Context, from, to common.Address, authority Authority, amount uint64) error {
	req := transferRequest{From: from, To: to, Authority: authority.Address(), Amount: amount}
	return r.do(ctx, http.MethodPost, "/transfer", req, nil)
}

func (r *RemoteLedger) RevertBurn(ctx context.Context, account common.Address, amount uint64) error {
	return r.do(ctx, http.MethodPost, "/burn/revert", burnRequest{Account: account, Amount: amount}, nil)
}

func (r *RemoteLedger) RevertTransfer(ctx context.Context, from, to common.Address, amount uint64) error {
	return r.do(ctx, http.MethodPost, "/transfer/revert", transferRequest{From: from, To: to, Amount: amount}, nil)
}

func (r *RemoteLedger) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.WithError(err).WithField("path", path).Warn("Token ledger request failed")
		return fmt.Errorf("token ledger %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	r.logger.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("Token ledger request")

	if resp.StatusCode >= 300 {
		return decodeLedgerError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeLedgerError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var le ledgerError
	if err := json.Unmarshal(raw, &le); err != nil || le.Code == "" {
		le = ledgerError{Message: strings.TrimSpace(string(raw))}
	}

	var sentinel error
	switch le.Code {
	case "account_not_found":
		sentinel = ErrAccountNotFound
	case "insufficient_funds":
		sentinel = ErrInsufficientFunds
	case "owner_mismatch":
		sentinel = ErrOwnerMismatch
	case "mint_mismatch":
		sentinel = ErrMintMismatch
	case "authority_mismatch":
		sentinel = ErrAuthorityMismatch
	default:
		if resp.StatusCode == http.StatusNotFound {
			sentinel = ErrAccountNotFound
		}
	}

	if sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, le.Message)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, le.Message)
	}
	return fmt.Errorf("token ledger returned status %d: %s", resp.StatusCode, le.Message)
}
