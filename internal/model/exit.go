package model

// Process exit codes.
const (
	ExitOK          = 0
	ExitNoInput     = 1
	ExitConfig      = 2
	ExitRateLimited = 3
	ExitInterrupted = 130
)
