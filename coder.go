package rlnc

import (
	"github.com/overlaymesh/rlnc/internal/nc"

	"golang.org/x/exp/rand"
)

type (
	// A Coder is one endpoint of a network coded link, without any I/O.
	// Conn drives a Coder over a Link.
	Coder = nc.Coder
	// CoderStats are the counters of a Coder.
	CoderStats = nc.Stats
	// A Window is a snapshot of one direction of a Coder.
	Window = nc.Window
	// A Unit is a linear combination stored in a Window.
	Unit = nc.Unit
	// A CoderOption configures a Coder.
	CoderOption = nc.Option
)

// NewCoder creates a Coder.
// maxWindowSize must be a power of two between 1 and 32.
func NewCoder(maxWindowSize, datagramSize int, opts ...CoderOption) (*Coder, error) {
	return nc.New(maxWindowSize, datagramSize, opts...)
}

// WithRand sets the generator used to pick random coefficients.
// It is useful for reproducible simulations.
func WithRand(r *rand.Rand) CoderOption {
	return nc.WithRand(r)
}
