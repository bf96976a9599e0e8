// Package rng hands out deterministic, isolated random sources per
// simulation subsystem so that drawing EMI noise never shifts the traffic
// sequence and vice versa.
package rng

import (
	"hash/fnv"
	"math/rand/v2"
	"time"
)

const (
	SubsystemTraffic = "traffic"
	SubsystemEMI     = "emi"
)

// Partitioned derives one PCG source per subsystem name:
// seed for stream 1, seed XOR fnv1a64(name) for stream 2.
type Partitioned struct {
	seed uint64
}

// New creates a Partitioned source. A zero seed is replaced by the current
// time, which makes the run non-reproducible.
func New(seed int64) *Partitioned {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Partitioned{seed: uint64(seed)}
}

// Seed returns the effective seed.
func (p *Partitioned) Seed() int64 { return int64(p.seed) }

// Source returns a fresh source for name positioned at the start of its
// stream. Sources of different names never share state.
func (p *Partitioned) Source(name string) rand.Source {
	return rand.NewPCG(p.seed, p.seed^fnv1a64(name))
}

func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
