/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import "time"

// Timer represents a scheduled function call.
type Timer interface {
	Stop() bool
}

// Clock provides time to a connection.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Executor runs connection events one at a time, in submission order.
type Executor interface {
	Run(fn func())
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
