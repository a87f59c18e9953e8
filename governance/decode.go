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

package governance

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

var (
	ErrDecode               = errors.New("decode error")
	ErrUnexpectedEOF        = fmt.Errorf("%w: unexpected end of data", ErrDecode)
	ErrWrongAccountType     = fmt.Errorf("%w: wrong account type", ErrDecode)
	ErrInvalidEnumVariant   = fmt.Errorf("%w: invalid enum variant", ErrDecode)
	ErrStringTooLong        = fmt.Errorf("%w: string too long", ErrDecode)
	ErrUninitializedAccount = fmt.Errorf("%w: account is not initialized", ErrDecode)
)

// Upper bound for any length-prefixed string or vector inside an account
const maxCollectionLen = 10 * 1024

// reader decodes the little-endian layout used by the governance program
// account data. The first error sticks and short-circuits further reads
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(data []byte) *reader {
	return &reader{buf: data}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w at offset %d (need %d bytes)", ErrUnexpectedEOF, r.off, n)
		return nil
	}
	ret := r.buf[r.off : r.off+n]
	r.off += n
	return ret
}

func (r *reader) skip(n int) {
	r.take(n)
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool {
	v := r.u8()
	if v > 1 && r.err == nil {
		r.err = fmt.Errorf("%w: bool value %d", ErrInvalidEnumVariant, v)
	}
	return v == 1
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64() int64 {
	return int64(r.u64()) //nolint:gosec // two's complement reinterpretation
}

func (r *reader) pubkey() Pubkey {
	var ret Pubkey
	b := r.take(PubkeySize)
	if b != nil {
		copy(ret[:], b)
	}
	return ret
}

// option reads the borsh Option tag
func (r *reader) option() bool {
	return r.bool()
}

func (r *reader) optionU64() *uint64 {
	if !r.option() {
		return nil
	}
	v := r.u64()
	return &v
}

func (r *reader) optionU32() *uint32 {
	if !r.option() {
		return nil
	}
	v := r.u32()
	return &v
}

func (r *reader) optionTime() *time.Time {
	if !r.option() {
		return nil
	}
	v := time.Unix(r.i64(), 0).UTC()
	if r.err != nil {
		return nil
	}
	return &v
}

func (r *reader) optionPubkey() *Pubkey {
	if !r.option() {
		return nil
	}
	v := r.pubkey()
	return &v
}

func (r *reader) length() int {
	n := r.u32()
	if r.err == nil && n > maxCollectionLen {
		r.err = fmt.Errorf("%w: length %d", ErrStringTooLong, n)
		return 0
	}
	return int(n)
}

func (r *reader) string() string {
	n := r.length()
	b := r.take(n)
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.err = fmt.Errorf("%w: invalid utf-8 string", ErrDecode)
		return ""
	}
	return string(b)
}

// AccountTypeOf returns the discriminator of raw governance account data
func AccountTypeOf(data []byte) (AccountType, error) {
	if len(data) == 0 {
		return AccountTypeUninitialized, ErrUninitializedAccount
	}
	t := AccountType(data[0])
	if t == AccountTypeUninitialized {
		return t, ErrUninitializedAccount
	}
	return t, nil
}
