package engine

// Provider constructs the concrete Engine this core runs against. The agent
// runtime that implements Engine lives entirely outside this repo (spec
// §1, §9 "Dynamic dispatch"); the embedded CLI that links the final binary
// is responsible for setting Provider before starting the server.
var Provider NewFunc

// NewFunc builds an Engine from a codexHome directory.
type NewFunc func(codexHome string) (Engine, error)
