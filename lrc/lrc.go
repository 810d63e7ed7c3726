package lrc

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	initMu              sync.Mutex
	initialized         bool
	globalRecoveryCount int
)

// ErrAlreadyInitialized is returned by Init when it is called a second
// time with a different globalRecoveryCount. Two packages configuring
// different recovery counts in one process would otherwise silently share
// whichever geometry came first.
var ErrAlreadyInitialized = errors.New("lrc: already initialized with a different globalRecoveryCount")

// Init performs the one-shot, process-wide setup required before any
// Encode/BeginDecode/BeginRebuild call: it records the global recovery
// count used to derive Params for every handle. It is safe to call Init
// more than once with the same globalRecoveryCount (idempotent); calling
// it again with a different value is an error.
func Init(n int) error {
	if n < MinGlobalRecoveryCount {
		return errors.New("lrc: globalRecoveryCount must be at least 3")
	}
	initMu.Lock()
	defer initMu.Unlock()
	if initialized {
		if globalRecoveryCount != n {
			return ErrAlreadyInitialized
		}
		return nil
	}
	globalRecoveryCount = n
	initialized = true
	return nil
}

// ErrNotInitialized is returned by any entry point called before Init.
var ErrNotInitialized = errors.New("lrc: Init has not been called")

func currentGlobalRecoveryCount() (int, error) {
	initMu.Lock()
	defer initMu.Unlock()
	if !initialized {
		return 0, ErrNotInitialized
	}
	return globalRecoveryCount, nil
}
