//go:build !unix

package latedays

import (
	"errors"
	"time"
)

type fileLock struct{}

func acquire(string, time.Duration) (*fileLock, error) {
	return nil, errors.New("late days: file locking is not supported on this platform")
}

func (*fileLock) release() error { return nil }
