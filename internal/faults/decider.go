// Package faults contiene el inyector de fallos usado en pruebas y staging: latencia
// determinista cada N peticiones y caída simulada después del commit. Ningún camino de
// producción depende de él para ser correcto.
package faults

import (
	"math/rand/v2"
	"sync"
)

// Decider decide si la petición actual debe simular una caída después del commit.
type Decider interface {
	ShouldCrash() bool
}

// Never nunca simula caídas; es el decider de producción.
type Never struct{}

func (Never) ShouldCrash() bool { return false }

// ProbabilityDecider simula caídas con probabilidad fija usando un generador con semilla,
// de modo que la misma semilla reproduce la misma secuencia.
type ProbabilityDecider struct {
	mu   sync.Mutex
	p    float64
	rand *rand.Rand
}

// NewProbabilityDecider construye el decider. p se acota a [0, 1].
func NewProbabilityDecider(p float64, seed uint64) *ProbabilityDecider {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &ProbabilityDecider{p: p, rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (d *ProbabilityDecider) ShouldCrash() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rand.Float64() < d.p
}

// Sequence devuelve las decisiones indicadas en orden y luego false.
type Sequence struct {
	mu        sync.Mutex
	decisions []bool
	i         int
}

// NewSequence construye un decider guionizado.
func NewSequence(decisions ...bool) *Sequence {
	return &Sequence{decisions: decisions}
}

func (s *Sequence) ShouldCrash() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.decisions) {
		return false
	}
	d := s.decisions[s.i]
	s.i++
	return d
}
