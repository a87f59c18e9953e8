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
	"slices"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sol-farm/realms-bot/governance"
)

// GetProposal returns the stored record for key, or ErrNotFound
func (d *Database) GetProposal(key governance.Pubkey) (*ProposalRecord, error) {
	var ret *ProposalRecord
	err := d.view("get_proposal", func(txn *badger.Txn) error {
		rec, err := getProposalTxn(txn, key)
		if err != nil {
			return err
		}
		ret = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// PutProposal atomically overwrites the record and its voting index entry
func (d *Database) PutProposal(rec ProposalRecord) error {
	if err := rec.validate(); err != nil {
		return err
	}
	rec.normalize()
	return d.update("put_proposal", func(txn *badger.Txn) error {
		return d.putProposalTxn(txn, &rec)
	})
}

// UpdateProposal reads the record for key, passes it to fn and writes back the
// result in the same transaction. The record passed to fn is nil when absent.
// Returning a nil record from fn skips the write. Conflicting concurrent
// writers cause fn to be invoked again with fresh data
func (d *Database) UpdateProposal(
	key governance.Pubkey,
	fn func(rec *ProposalRecord) (*ProposalRecord, error),
) (*ProposalRecord, error) {
	var ret *ProposalRecord
	err := d.update("update_proposal", func(txn *badger.Txn) error {
		ret = nil
		cur, err := getProposalTxn(txn, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			ret = cur
			return nil
		}
		if next.Key != key {
			return fmt.Errorf(
				"%w: key changed from %s to %s",
				ErrInvalidRecord,
				key,
				next.Key,
			)
		}
		if err := next.validate(); err != nil {
			return err
		}
		next.normalize()
		if err := d.putProposalTxn(txn, next); err != nil {
			return err
		}
		ret = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// ScanActive returns every record currently in the Voting state, ordered by key
func (d *Database) ScanActive() ([]ProposalRecord, error) {
	var ret []ProposalRecord
	err := d.view("scan_active", func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix: []byte(votingIndexKeyPrefix),
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rawKey := it.Item().Key()
			key, err := governance.PubkeyFromBytes(
				rawKey[len(votingIndexKeyPrefix):],
			)
			if err != nil {
				return fmt.Errorf("%w: bad index key: %w", ErrStorage, err)
			}
			rec, err := getProposalTxn(txn, key)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					// Dangling index entry
					d.logger.Warn(
						fmt.Sprintf("voting index references missing proposal %s", key),
						"component", "database",
					)
					continue
				}
				return err
			}
			if !rec.IsActive() {
				continue
			}
			ret = append(ret, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.votingTracked.Set(float64(len(ret)))
	}
	return ret, nil
}

// ListProposals returns every stored record ordered by key
func (d *Database) ListProposals() ([]ProposalRecord, error) {
	var ret []ProposalRecord
	err := d.view("list_proposals", func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         []byte(proposalKeyPrefix),
			PrefetchValues: true,
			PrefetchSize:   100,
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec ProposalRecord
			err := it.Item().Value(func(val []byte) error {
				return decodeRecord(val, &rec)
			})
			if err != nil {
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

// ProposalsByKey returns the stored records for the given keys. Keys without a
// record are omitted from the result
func (d *Database) ProposalsByKey(
	keys []governance.Pubkey,
) (map[governance.Pubkey]ProposalRecord, error) {
	ret := make(map[governance.Pubkey]ProposalRecord, len(keys))
	err := d.view("proposals_by_key", func(txn *badger.Txn) error {
		for _, key := range keys {
			rec, err := getProposalTxn(txn, key)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			ret[key] = *rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func getProposalTxn(
	txn *badger.Txn,
	key governance.Pubkey,
) (*ProposalRecord, error) {
	item, err := txn.Get(proposalKey(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	var rec ProposalRecord
	if err := item.Value(func(val []byte) error {
		return decodeRecord(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *Database) putProposalTxn(txn *badger.Txn, rec *ProposalRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := txn.Set(proposalKey(rec.Key), data); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	idxKey := votingIndexKey(rec.Key)
	if rec.IsActive() {
		err = txn.Set(idxKey, nil)
	} else {
		err = txn.Delete(idxKey)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if d.metrics != nil {
		d.metrics.proposalWrites.Inc()
	}
	return nil
}

// SortProposals orders records by key
func SortProposals(recs []ProposalRecord) {
	slices.SortFunc(recs, func(a, b ProposalRecord) int {
		return a.Key.Compare(b.Key)
	})
}
