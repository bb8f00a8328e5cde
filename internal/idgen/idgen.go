package idgen

import "github.com/google/uuid"

// NewFunc returns a new globally unique identifier. Tests may replace it.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new execution identifier.
func New() string { return NewFunc() }

// NewHandle returns an approval handle. Handles carry a prefix so they are
// distinguishable from execution ids in logs and URLs.
func NewHandle() string { return "apr-" + NewFunc() }
