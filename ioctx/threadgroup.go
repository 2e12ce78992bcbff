// Package ioctx provides the I/O runtime: a shared goroutine group driving
// socket operations for any number of clients and servers
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package ioctx

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dac1976/corelib-go/cmn/nlog"
)

// ThreadGroup owns the goroutines performing socket I/O. One group is
// typically shared by all clients and servers in a process (the recommended
// mode); owners constructed without one create their own standalone group.
//
// Completions running on the group hold their own reference to the connection
// they serve, so a connection stays alive until its last in-flight operation
// finishes even if the user-facing owner has dropped it.
type ThreadGroup struct {
	grp    *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

func NewThreadGroup() *ThreadGroup {
	return NewThreadGroupWithContext(context.Background())
}

func NewThreadGroupWithContext(parent context.Context) *ThreadGroup {
	ctx, cancel := context.WithCancel(parent)
	grp, ctx := errgroup.WithContext(ctx)
	return &ThreadGroup{grp: grp, ctx: ctx, cancel: cancel}
}

// Context is canceled when the group stops; long-running loops must select on
// it (or observe their sockets closing) and return.
func (tg *ThreadGroup) Context() context.Context { return tg.ctx }

// Go runs fn on the group. I/O loop errors are terminal for the loop's own
// connection, never for the group: fn's panic is recovered and logged.
func (tg *ThreadGroup) Go(name string, fn func()) {
	tg.grp.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				nlog.Errorf("%s: panic: %v", name, r)
			}
		}()
		fn()
		return nil
	})
}

// Stop cancels the group's context; it does not wait.
func (tg *ThreadGroup) Stop() { tg.cancel() }

// Wait blocks until every goroutine started via Go has returned.
func (tg *ThreadGroup) Wait() { _ = tg.grp.Wait() }
