// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// transpose-bench schedules and runs a few transpose-heavy fusions on the
// selected backend (FUSER_BACKEND, default hostref) and reports the derived
// launch geometry and throughput.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/fuser/backends"
	_ "github.com/gomlx/fuser/backends/hostref"
	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/scheduler"
	"github.com/gomlx/fuser/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagSize = flag.Int("size", 1024, "Side of the square transposed matrices.")
	flagRuns = flag.Int("runs", 3, "Number of timed executions per case.")
	flagSeed = flag.Int64("seed", 42, "Seed for the random input data.")
)

type benchCase struct {
	name  string
	build func(f *fusion.Fusion) // adds inputs and outputs
	dims  [][]int
}

func cases(size int) []benchCase {
	return []benchCase{
		{
			name: "transpose2d",
			build: func(f *fusion.Fusion) {
				tv0 := f.NewTensor(dtypes.Float32, 2)
				f.AddInput(tv0)
				f.AddOutput(fusion.Transpose(tv0, 0, 1))
			},
			dims: [][]int{{size, size}},
		},
		{
			name: "sin-transpose-cos",
			build: func(f *fusion.Fusion) {
				tv0 := f.NewTensor(dtypes.Float32, 2)
				f.AddInput(tv0)
				f.AddOutput(fusion.Cos(fusion.Transpose(fusion.Sin(tv0), 0, 1)))
			},
			dims: [][]int{{size, size}},
		},
		{
			name: "batched-transpose-add",
			build: func(f *fusion.Fusion) {
				tv0 := f.NewTensor(dtypes.Float32, 3)
				tv1 := f.NewTensor(dtypes.Float32, 3)
				f.AddInput(tv0)
				f.AddInput(tv1)
				f.AddOutput(fusion.Transpose(fusion.Add(tv0, tv1), 1, 2))
			},
			dims: [][]int{{16, size, size / 4}, {16, size, size / 4}},
		},
	}
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	backend := must.M1(backends.New())
	defer backend.Finalize()
	fmt.Printf("Backend: %s\n\n", backend.Description())

	rng := rand.New(rand.NewSource(*flagSeed))
	for _, bc := range cases(*flagSize) {
		run(backend, bc, rng)
	}
}

func run(backend backends.Backend, bc benchCase, rng *rand.Rand) {
	f := fusion.New()
	bc.build(f)

	inputs := make([]*tensors.Tensor, len(bc.dims))
	var moved uintptr
	for i, dims := range bc.dims {
		inputs[i] = tensors.Uniform(rng, dtypes.Float32, dims...)
		moved += inputs[i].Shape().Memory()
	}

	lp := must.M1(scheduler.ScheduleTranspose(f, inputs))
	exec := must.M1(backend.Compile(f, inputs, lp))
	defer exec.Finalize()

	var best time.Duration
	for r := 0; r < *flagRuns; r++ {
		start := time.Now()
		outputs := must.M1(exec.Run(inputs))
		elapsed := time.Since(start)
		if r == 0 {
			for _, out := range outputs {
				moved += out.Shape().Memory()
			}
			best = elapsed
		} else if elapsed < best {
			best = elapsed
		}
	}

	bandwidth := float64(moved) / best.Seconds()
	fmt.Printf("%-24s %s: %s moved in %s (%s/s)\n",
		bc.name, lp, humanize.IBytes(uint64(moved)), best, humanize.IBytes(uint64(bandwidth)))
}
