package auxagent

import "errors"

// ErrPoolFull is returned by Spawn when the agent pool is at capacity.
var ErrPoolFull = errors.New("maximum number of auxiliary agents reached")

// ErrNotFound is returned by Stop when the agent id is unknown.
var ErrNotFound = errors.New("auxiliary agent not found")
