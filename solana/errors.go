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

import "errors"

var (
	// ErrTransport is returned when the RPC endpoint cannot be reached or
	// answers with an error
	ErrTransport = errors.New("rpc transport error")
	// ErrDecode is returned when an RPC response cannot be interpreted
	ErrDecode = errors.New("rpc response decode error")
	// ErrAccountNotFound is returned when a required account does not exist
	ErrAccountNotFound = errors.New("account not found")
)
