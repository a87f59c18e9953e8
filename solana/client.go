// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sol-farm/realms-bot/governance"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultCommitment     = CommitmentConfirmed
	// Upper bound of keys per getMultipleAccounts request
	MaxMultipleAccounts   = 100
	defaultMaxConcurrency = 4
)

// FetchMode selects how proposals are discovered
type FetchMode string

const (
	// FetchModeScan lists proposal accounts with getProgramAccounts
	FetchModeScan FetchMode = "scan"
	// FetchModeIndex derives proposal addresses from the governance proposal
	// count and fetches them with getMultipleAccounts
	FetchModeIndex FetchMode = "index"
)

func ParseFetchMode(s string) (FetchMode, error) {
	switch FetchMode(strings.ToLower(s)) {
	case FetchModeScan, "":
		return FetchModeScan, nil
	case FetchModeIndex:
		return FetchModeIndex, nil
	default:
		return "", fmt.Errorf("unknown fetch mode %q", s)
	}
}

// Client reads governance accounts from a Solana JSON-RPC endpoint
type Client struct {
	rpcClient      *rpc.Client
	httpClient     *http.Client
	logger         *slog.Logger
	limiter        *rate.Limiter
	councilMint    *governance.Pubkey
	endpoint       string
	commitment     string
	fetchMode      FetchMode
	requestTimeout time.Duration
	rateLimit      float64
	rateBurst      int
	maxConcurrency int
	programId      governance.Pubkey
	realm          governance.Pubkey
	communityMint  governance.Pubkey
	governance     governance.Pubkey
	mintCache      mintCache
}

// NewClient creates a client for endpoint. No connection is made until the
// first request
func NewClient(
	ctx context.Context,
	endpoint string,
	opts ...ClientOptionFunc,
) (*Client, error) {
	c := &Client{
		endpoint:       endpoint,
		commitment:     DefaultCommitment,
		fetchMode:      FetchModeScan,
		requestTimeout: DefaultRequestTimeout,
		maxConcurrency: defaultMaxConcurrency,
		programId:      governance.MustParsePubkey(governance.DefaultProgramId),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.rateLimit > 0 {
		burst := max(c.rateBurst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(c.rateLimit), burst)
	}
	rpcClient, err := rpc.DialOptions(
		ctx,
		endpoint,
		rpc.WithHTTPClient(c.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, endpoint, err)
	}
	c.rpcClient = rpcClient
	return c, nil
}

// Close releases the underlying RPC client
func (c *Client) Close() {
	c.rpcClient.Close()
}

// call performs a single JSON-RPC request bounded by the request timeout
func (c *Client) call(
	ctx context.Context,
	result any,
	method string,
	args ...any,
) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	start := time.Now()
	err := c.rpcClient.CallContext(ctx, result, method, args...)
	c.logger.Debug(
		fmt.Sprintf("rpc call %s finished in %s", method, time.Since(start)),
		"component", "solana",
	)
	if err != nil {
		return classifyError(method, err)
	}
	return nil
}

func classifyError(method string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf(
			"%w: %s: rpc error %d: %w",
			ErrTransport,
			method,
			rpcErr.ErrorCode(),
			err,
		)
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Errorf(
			"%w: %s: http status %d",
			ErrTransport,
			method,
			httpErr.StatusCode,
		)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %s: %w", ErrDecode, method, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
}

// GetAccount fetches a single account. ErrAccountNotFound is returned when
// the account does not exist
func (c *Client) GetAccount(
	ctx context.Context,
	key governance.Pubkey,
) (*Account, error) {
	var res accountInfoResult
	err := c.call(
		ctx,
		&res,
		"getAccountInfo",
		key.String(),
		accountConfig{Encoding: "base64", Commitment: c.commitment},
	)
	if err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return toAccount(key, res.Value)
}

// GetMultipleAccounts fetches the accounts for keys, splitting the request into
// batches. Missing accounts are omitted from the result
func (c *Client) GetMultipleAccounts(
	ctx context.Context,
	keys []governance.Pubkey,
) (map[governance.Pubkey]*Account, error) {
	batches := make([][]governance.Pubkey, 0, len(keys)/MaxMultipleAccounts+1)
	for start := 0; start < len(keys); start += MaxMultipleAccounts {
		end := min(start+MaxMultipleAccounts, len(keys))
		batches = append(batches, keys[start:end])
	}
	results := make([][]*Account, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for i, batch := range batches {
		g.Go(func() error {
			accounts, err := c.getMultipleAccountsBatch(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = accounts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	ret := make(map[governance.Pubkey]*Account, len(keys))
	for _, accounts := range results {
		for _, account := range accounts {
			ret[account.Key] = account
		}
	}
	return ret, nil
}

func (c *Client) getMultipleAccountsBatch(
	ctx context.Context,
	keys []governance.Pubkey,
) ([]*Account, error) {
	strKeys := make([]string, len(keys))
	for i, key := range keys {
		strKeys[i] = key.String()
	}
	var res multipleAccountsResult
	err := c.call(
		ctx,
		&res,
		"getMultipleAccounts",
		strKeys,
		accountConfig{Encoding: "base64", Commitment: c.commitment},
	)
	if err != nil {
		return nil, err
	}
	if len(res.Value) != len(keys) {
		return nil, fmt.Errorf(
			"%w: getMultipleAccounts returned %d accounts for %d keys",
			ErrDecode,
			len(res.Value),
			len(keys),
		)
	}
	ret := make([]*Account, 0, len(keys))
	for i, value := range res.Value {
		if value == nil {
			continue
		}
		account, err := toAccount(keys[i], value)
		if err != nil {
			return nil, err
		}
		ret = append(ret, account)
	}
	return ret, nil
}

// GetProgramAccounts lists the accounts owned by programId matching filters
func (c *Client) GetProgramAccounts(
	ctx context.Context,
	programId governance.Pubkey,
	filters ...programAccountsFilter,
) ([]*Account, error) {
	var res []programAccount
	err := c.call(
		ctx,
		&res,
		"getProgramAccounts",
		programId.String(),
		programAccountsConfig{
			Encoding:   "base64",
			Commitment: c.commitment,
			Filters:    filters,
		},
	)
	if err != nil {
		return nil, err
	}
	ret := make([]*Account, 0, len(res))
	for _, item := range res {
		key, err := governance.ParsePubkey(item.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		account, err := toAccount(key, &item.Account)
		if err != nil {
			return nil, err
		}
		ret = append(ret, account)
	}
	return ret, nil
}

func toAccount(key governance.Pubkey, value *rpcAccount) (*Account, error) {
	data, err := value.decodeData()
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", key, err)
	}
	ret := &Account{
		Key:  key,
		Data: data,
	}
	if value.Owner != "" {
		owner, err := governance.ParsePubkey(value.Owner)
		if err != nil {
			return nil, fmt.Errorf("%w: account %s owner: %w", ErrDecode, key, err)
		}
		ret.Owner = owner
	}
	return ret, nil
}
