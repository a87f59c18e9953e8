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

package database

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrStorage wraps failures of the underlying store
	ErrStorage = errors.New("storage error")
	// ErrRealmConfigMismatch is returned when the persisted realm identifiers
	// differ from the ones supplied at startup
	ErrRealmConfigMismatch = errors.New("realm config does not match persisted config")
	// ErrInvalidRecord is returned when a record fails validation before write
	ErrInvalidRecord = errors.New("invalid record")
)
