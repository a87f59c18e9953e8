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

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// RealmConfig returns the persisted realm identifiers, or ErrNotFound when the
// store has not been seeded yet
func (d *Database) RealmConfig() (*RealmConfig, error) {
	var ret RealmConfig
	err := d.view("get_realm_config", func(txn *badger.Txn) error {
		return getRecordTxn(txn, []byte(realmConfigKey), &ret)
	})
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// SeedRealmConfig persists cfg on first use. On later calls the supplied
// identifiers must match the persisted ones, otherwise ErrRealmConfigMismatch
// is returned. The persisted config is returned in both cases
func (d *Database) SeedRealmConfig(cfg RealmConfig) (*RealmConfig, error) {
	var ret RealmConfig
	err := d.update("seed_realm_config", func(txn *badger.Txn) error {
		err := getRecordTxn(txn, []byte(realmConfigKey), &ret)
		if err == nil {
			if !ret.Matches(&cfg) {
				return fmt.Errorf(
					"%w: stored realm %s, governance %s",
					ErrRealmConfigMismatch,
					ret.RealmKey,
					ret.GovernanceKey,
				)
			}
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		ret = cfg
		if ret.SeededAt.IsZero() {
			ret.SeededAt = time.Now()
		}
		ret.SeededAt = ret.SeededAt.UTC()
		return setRecordTxn(txn, []byte(realmConfigKey), &ret)
	})
	if err != nil {
		return nil, err
	}
	return &ret, nil
}
