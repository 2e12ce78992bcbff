//go:build debug

// Package debug provides debug utilities
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package debug

import (
	"fmt"

	"github.com/dac1976/corelib-go/cmn/nlog"
)

func ON() bool { return true }

func Infof(format string, a ...any) { nlog.InfoDepth(1, fmt.Sprintf(format, a...)) }

func Func(f func()) { f() }

func Assert(cond bool, a ...any) {
	if !cond {
		msg := "assertion failed"
		if len(a) > 0 {
			msg += ": " + fmt.Sprint(a...)
		}
		nlog.ErrorDepth(1, msg)
		panic(msg)
	}
}

func AssertFunc(f func() bool, a ...any) { Assert(f(), a...) }

func AssertNoErr(err error) {
	if err != nil {
		nlog.ErrorDepth(1, err.Error())
		panic(err)
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		Assert(false, fmt.Sprintf(format, a...))
	}
}
