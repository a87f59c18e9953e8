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
	"log/slog"
	"net/http"
	"time"

	"github.com/sol-farm/realms-bot/governance"
)

type ClientOptionFunc func(*Client)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) ClientOptionFunc {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient specifies the HTTP client used for RPC requests
func WithHTTPClient(httpClient *http.Client) ClientOptionFunc {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCommitment specifies the commitment level for all reads
func WithCommitment(commitment string) ClientOptionFunc {
	return func(c *Client) {
		c.commitment = commitment
	}
}

// WithRequestTimeout bounds each individual RPC request
func WithRequestTimeout(timeout time.Duration) ClientOptionFunc {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// WithRateLimit limits the number of RPC requests per second. A zero value
// disables limiting
func WithRateLimit(perSecond float64, burst int) ClientOptionFunc {
	return func(c *Client) {
		c.rateLimit = perSecond
		c.rateBurst = burst
	}
}

// WithProgramId specifies the governance program
func WithProgramId(programId governance.Pubkey) ClientOptionFunc {
	return func(c *Client) {
		c.programId = programId
	}
}

// WithRealm specifies the monitored realm and its governing token mints
func WithRealm(
	realm governance.Pubkey,
	communityMint governance.Pubkey,
	councilMint *governance.Pubkey,
) ClientOptionFunc {
	return func(c *Client) {
		c.realm = realm
		c.communityMint = communityMint
		c.councilMint = councilMint
	}
}

// WithGovernance specifies the monitored governance account
func WithGovernance(governanceKey governance.Pubkey) ClientOptionFunc {
	return func(c *Client) {
		c.governance = governanceKey
	}
}

// WithFetchMode selects how proposals are discovered
func WithFetchMode(mode FetchMode) ClientOptionFunc {
	return func(c *Client) {
		c.fetchMode = mode
	}
}

// WithMaxConcurrency bounds the number of concurrent batch requests
func WithMaxConcurrency(n int) ClientOptionFunc {
	return func(c *Client) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}
