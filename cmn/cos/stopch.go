// Package cos provides common low-level types and utilities for all corelib packages
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package cos

import "sync"

// StopCh is a once-closable stop channel.
type StopCh struct {
	ch   chan struct{}
	once sync.Once
}

func NewStopCh() *StopCh {
	s := &StopCh{}
	s.Init()
	return s
}

func (s *StopCh) Init()                   { s.ch = make(chan struct{}, 1) }
func (s *StopCh) Listen() <-chan struct{} { return s.ch }
func (s *StopCh) Close()                  { s.once.Do(func() { close(s.ch) }) }

func (s *StopCh) Stopped() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
