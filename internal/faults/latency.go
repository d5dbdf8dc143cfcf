package faults

import (
	"sync/atomic"
	"time"
)

// Latency retrasa cada N-ésima petición una duración fija. El contador es global al
// inyector, igual que un contador de peticiones del proceso.
type Latency struct {
	every   int64
	delay   time.Duration
	counter atomic.Int64
}

// NewLatency construye el inyector. every <= 0 o delay <= 0 lo desactiva.
func NewLatency(every int, delay time.Duration) *Latency {
	return &Latency{every: int64(every), delay: delay}
}

// Next cuenta una petición y devuelve su número y el retraso que le toca (0 si no le toca).
func (l *Latency) Next() (int64, time.Duration) {
	n := l.counter.Add(1)
	if l.every <= 0 || l.delay <= 0 || n%l.every != 0 {
		return n, 0
	}
	return n, l.delay
}
