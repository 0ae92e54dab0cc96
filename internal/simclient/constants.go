package simclient

import "time"

// HTTP status code constants.
const (
	StatusOK      = 200
	StatusCreated = 201
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	SettleDelay          = 2 * time.Second
	PercentageMultiplier = 100
	TokenTTL             = 1 * time.Hour
)
