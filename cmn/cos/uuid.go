// Package cos provides common low-level types and utilities for all corelib packages
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package cos

import (
	"sync"
	ratomic "sync/atomic"
	"time"

	"github.com/teris-io/shortid"
)

const (
	// alphabet for generating IDs, similar to shortid.DEFAULT_ABC
	// NOTE: len(uuidABC) > 0x3f - see GenTie()
	uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"
)

var (
	sid     *shortid.Shortid
	sidOnce sync.Once
	rtie    ratomic.Uint32
)

func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

// GenUUID returns a short locally-unique ID.
func GenUUID() (uuid string) {
	sidOnce.Do(func() {
		if sid == nil {
			InitShortID(uint64(time.Now().UnixNano() & 0xffff))
		}
	})
	uuid = sid.MustGenerate()
	if !isAlpha(uuid[0]) {
		tie := int(rtie.Add(1))
		uuid = string(rune('A'+tie%26)) + uuid
	}
	return uuid
}

// GenTie returns a 3-letter tie breaker (fast).
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[-tie&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
