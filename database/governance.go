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
	"github.com/sol-farm/realms-bot/governance"
)

// GetGovernance returns the cached governance record, or ErrNotFound
func (d *Database) GetGovernance(
	key governance.Pubkey,
) (*GovernanceRecord, error) {
	var ret GovernanceRecord
	err := d.view("get_governance", func(txn *badger.Txn) error {
		return getRecordTxn(txn, governanceKey(key), &ret)
	})
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// PutGovernance stores the governance record. It returns false without
// writing when the stored record already carries the same on-chain values
func (d *Database) PutGovernance(rec GovernanceRecord) (bool, error) {
	if rec.Key.IsZero() {
		return false, fmt.Errorf("%w: governance key is empty", ErrInvalidRecord)
	}
	rec.UpdatedAt = utc(rec.UpdatedAt)
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	var written bool
	err := d.update("put_governance", func(txn *badger.Txn) error {
		written = false
		var cur GovernanceRecord
		err := getRecordTxn(txn, governanceKey(rec.Key), &cur)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err == nil && cur.Equal(&rec) {
			return nil
		}
		if err := setRecordTxn(txn, governanceKey(rec.Key), &rec); err != nil {
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

// ListGovernances returns every cached governance record
func (d *Database) ListGovernances() ([]GovernanceRecord, error) {
	var ret []GovernanceRecord
	err := d.view("list_governances", func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         []byte(governanceKeyPrefix),
			PrefetchValues: true,
			PrefetchSize:   10,
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec GovernanceRecord
			if err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, &rec)
			}); err != nil {
				return err
			}
			ret = append(ret, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// GetRealm returns the realm record, or ErrNotFound
func (d *Database) GetRealm(key governance.Pubkey) (*RealmRecord, error) {
	var ret RealmRecord
	err := d.view("get_realm", func(txn *badger.Txn) error {
		return getRecordTxn(txn, realmKey(key), &ret)
	})
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// PutRealm stores the realm record
func (d *Database) PutRealm(rec RealmRecord) error {
	if rec.Key.IsZero() {
		return fmt.Errorf("%w: realm key is empty", ErrInvalidRecord)
	}
	rec.UpdatedAt = utc(rec.UpdatedAt)
	return d.update("put_realm", func(txn *badger.Txn) error {
		return setRecordTxn(txn, realmKey(rec.Key), &rec)
	})
}

func getRecordTxn(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return item.Value(func(val []byte) error {
		return decodeRecord(val, v)
	})
}

func setRecordTxn(txn *badger.Txn, key []byte, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}
	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}
