// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a kernel compilation and execution
// system needs to implement to run scheduled fusions.
//
// The scheduler produces a scheduled fusion plus LaunchParams; a Backend
// turns that pair into an Executable. The reference backend (see
// github.com/gomlx/fuser/backends/hostref) interprets the fusion on the host
// and is what tests validate against; a real accelerator backend would emit
// and launch device code instead.
//
// Backends register themselves at init time and are selected by a
// configuration string, see New.
package backends

import (
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/types/tensors"
)

// LaunchParams is the kernel launch geometry the scheduler derived for a
// fusion: grid and block sizes per hardware dimension (x, y, z) and the
// total dynamic shared memory the kernel needs.
type LaunchParams struct {
	GridDim  [3]int
	BlockDim [3]int

	// SmemBytes is the dynamic shared memory per block, in bytes.
	SmemBytes int
}

// NumBlocks is the total number of blocks in the grid.
func (lp LaunchParams) NumBlocks() int {
	return lp.GridDim[0] * lp.GridDim[1] * lp.GridDim[2]
}

// NumThreads is the number of threads per block.
func (lp LaunchParams) NumThreads() int {
	return lp.BlockDim[0] * lp.BlockDim[1] * lp.BlockDim[2]
}

// String implements fmt.Stringer.
func (lp LaunchParams) String() string {
	return fmt.Sprintf("grid=%v block=%v smem=%dB", lp.GridDim, lp.BlockDim, lp.SmemBytes)
}

// Backend compiles scheduled fusions into runnable executables.
type Backend interface {
	// Name returns the short name of the backend, e.g. "hostref".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Compile lowers the scheduled fusion for the concrete input shapes of
	// sampleInputs. The returned Executable only accepts inputs with those
	// shapes.
	Compile(f *fusion.Fusion, sampleInputs []*tensors.Tensor, params LaunchParams) (Executable, error)

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Executable is a compiled fusion ready to run.
type Executable interface {
	// Run executes the fusion on the given inputs and returns the outputs,
	// in the fusion's output registration order.
	Run(inputs []*tensors.Tensor) ([]*tensors.Tensor, error)

	// Finalize releases the executable's resources.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a constructor that takes as
// input a backend-specific configuration string.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the backend configuration to use if the environment
// variable is not set. See New for the format.
var DefaultConfig string

// FUSER_BACKEND is the environment variable with the default backend
// configuration to use.
const FUSER_BACKEND = "FUSER_BACKEND"

// New returns a Backend from the default configuration:
//
//  1. The environment variable FUSER_BACKEND is used as configuration if set.
//  2. Next the variable DefaultConfig is used if non-empty.
//  3. The first registered backend is used with an empty configuration.
//
// The format of a configuration is "<backend_name>:<backend_configuration>",
// where "<backend_name>" is the name of a registered backend (e.g.
// "hostref") and "<backend_configuration>" is backend specific.
func New() (Backend, error) {
	if config, found := os.LookupEnv(FUSER_BACKEND); found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// MustNew is like New but panics on error.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		panic(err)
	}
	return backend
}

// NewWithConfig creates a Backend from a "<backend_name>:<backend_configuration>"
// string. An empty name selects the first registered backend.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered backends -- maybe import the reference one with import _ "github.com/gomlx/fuser/backends/hostref"?`)
	}
	backendName := config
	backendConfig := ""
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	}
	if backendName == "" {
		backendName = firstRegistered
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		exceptions.Panicf("can't find backend %q for configuration %q given", backendName, config)
	}
	return constructor(backendConfig)
}
