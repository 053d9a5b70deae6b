/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package simclock

import (
	"crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// Rng is the randomness abstraction threaded through any probabilistic
// path (compaction sampling, fault injection, DST operation generation).
type Rng interface {
	// Uint64 returns a pseudo-random uint64.
	Uint64() uint64
	// Float64 returns a pseudo-random float64 in [0, 1).
	Float64() float64
	// IntN returns a pseudo-random int in [0, n).
	IntN(n int) int
}

// Production wraps a process-wide CSPRNG-seeded generator. It is not
// reproducible and must never be used on a path the DST harness drives.
type Production struct {
	mu  sync.Mutex
	src *rand.ChaCha8
}

// NewProduction seeds a Production RNG from the OS entropy source.
func NewProduction() *Production {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing means the OS entropy pool is broken; fall
		// back to a fixed seed rather than panicking the process.
		binary.LittleEndian.PutUint64(seed[:8], uint64(len(seed)))
	}
	return &Production{src: rand.NewChaCha8(seed)}
}

func (p *Production) Uint64() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src.Uint64()
}

func (p *Production) Float64() float64 {
	return float64(p.Uint64()>>11) / (1 << 53)
}

func (p *Production) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return int(p.Uint64() % uint64(n))
}

// Seeded is a deterministic Rng for the DST harness: the same seed always
// produces the same sequence, regardless of goroutine scheduling, because
// every call is serialized through a mutex.
type Seeded struct {
	mu   sync.Mutex
	src  *rand.ChaCha8
	seed uint64
}

// NewSeeded returns a reproducible Rng derived purely from seed.
func NewSeeded(seed uint64) *Seeded {
	var b [32]byte
	binary.LittleEndian.PutUint64(b[0:8], seed)
	binary.LittleEndian.PutUint64(b[8:16], seed^0x9E3779B97F4A7C15)
	binary.LittleEndian.PutUint64(b[16:24], seed^0xBF58476D1CE4E5B9)
	binary.LittleEndian.PutUint64(b[24:32], seed^0x94D049BB133111EB)
	return &Seeded{src: rand.NewChaCha8(b), seed: seed}
}

func (s *Seeded) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

func (s *Seeded) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

func (s *Seeded) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Uint64() % uint64(n))
}

// Seed returns the seed this generator was constructed with, so a failing
// DST run can be reported and reproduced.
func (s *Seeded) Seed() uint64 {
	return s.seed
}
