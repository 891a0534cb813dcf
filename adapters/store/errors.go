package store

import "errors"

// ErrSessionExists is returned when a session is started for a refresh token
// the ledger has already seen
var ErrSessionExists = errors.New("session already recorded")
