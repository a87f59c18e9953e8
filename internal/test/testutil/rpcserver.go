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

package testutil

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/sol-farm/realms-bot/governance"
)

// RPCServer is a fake Solana JSON-RPC endpoint serving a fixed account set
type RPCServer struct {
	*httptest.Server
	accounts   map[governance.Pubkey]rpcServerAccount
	calls      map[string]int
	failMethod map[string]int
	mu         sync.Mutex
}

type rpcServerAccount struct {
	owner governance.Pubkey
	data  []byte
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
}

type rpcError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// NewRPCServer starts a fake endpoint. It is closed when the test ends
func NewRPCServer(t interface{ Cleanup(func()) }) *RPCServer {
	s := &RPCServer{
		accounts:   make(map[governance.Pubkey]rpcServerAccount),
		calls:      make(map[string]int),
		failMethod: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// SetAccount adds or replaces an account
func (s *RPCServer) SetAccount(key, owner governance.Pubkey, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[key] = rpcServerAccount{owner: owner, data: data}
}

// RemoveAccount deletes an account
func (s *RPCServer) RemoveAccount(key governance.Pubkey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, key)
}

// FailMethod makes every call to method fail. A negative code returns a
// JSON-RPC error with that code, a positive code is used as the HTTP status
// and zero clears the failure
func (s *RPCServer) FailMethod(method string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.failMethod, method)
		return
	}
	s.failMethod[method] = code
}

// Calls returns how many times method was called
func (s *RPCServer) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *RPCServer) handle(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Method]++
	resp := rpcResponse{ID: req.ID, JSONRPC: "2.0"}
	if code, ok := s.failMethod[req.Method]; ok {
		if code > 0 {
			http.Error(w, "injected failure", code)
			return
		}
		resp.Error = &rpcError{Code: code, Message: "injected failure"}
		s.write(w, resp)
		return
	}
	switch req.Method {
	case "getAccountInfo":
		var key string
		if !s.param(req, 0, &key, w) {
			return
		}
		resp.Result = map[string]any{
			"context": map[string]any{"slot": 1},
			"value":   s.lookup(key),
		}
	case "getMultipleAccounts":
		var keys []string
		if !s.param(req, 0, &keys, w) {
			return
		}
		values := make([]any, len(keys))
		for i, key := range keys {
			values[i] = s.lookup(key)
		}
		resp.Result = map[string]any{
			"context": map[string]any{"slot": 1},
			"value":   values,
		}
	case "getProgramAccounts":
		var program string
		if !s.param(req, 0, &program, w) {
			return
		}
		var cfg struct {
			Filters []struct {
				Memcmp *struct {
					Bytes  string `json:"bytes"`
					Offset int    `json:"offset"`
				} `json:"memcmp"`
			} `json:"filters"`
		}
		if len(req.Params) > 1 && !s.param(req, 1, &cfg, w) {
			return
		}
		programKey, err := governance.ParsePubkey(program)
		if err != nil {
			resp.Error = &rpcError{Code: -32602, Message: err.Error()}
			break
		}
		result := []any{}
		for key, account := range s.accounts {
			if account.owner != programKey {
				continue
			}
			match := true
			for _, f := range cfg.Filters {
				if f.Memcmp == nil {
					continue
				}
				want, err := base58.Decode(f.Memcmp.Bytes)
				end := f.Memcmp.Offset + len(want)
				if err != nil || end > len(account.data) ||
					!bytes.Equal(account.data[f.Memcmp.Offset:end], want) {
					match = false
					break
				}
			}
			if match {
				result = append(result, map[string]any{
					"pubkey":  key.String(),
					"account": encodeAccount(account),
				})
			}
		}
		resp.Result = result
	default:
		resp.Error = &rpcError{Code: -32601, Message: "method not found"}
	}
	s.write(w, resp)
}

func (s *RPCServer) param(
	req rpcRequest,
	idx int,
	dst any,
	w http.ResponseWriter,
) bool {
	if idx >= len(req.Params) {
		http.Error(w, "missing param", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(req.Params[idx], dst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *RPCServer) lookup(key string) any {
	pk, err := governance.ParsePubkey(key)
	if err != nil {
		return nil
	}
	account, ok := s.accounts[pk]
	if !ok {
		return nil
	}
	return encodeAccount(account)
}

func (s *RPCServer) write(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func encodeAccount(account rpcServerAccount) map[string]any {
	return map[string]any{
		"data": []string{
			base64.StdEncoding.EncodeToString(account.data),
			"base64",
		},
		"owner":      account.owner.String(),
		"lamports":   1_000_000,
		"executable": false,
		"rentEpoch":  0,
	}
}
