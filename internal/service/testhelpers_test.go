package service

import (
	"io"
	"log/slog"
	"sync"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingPublisher captures published events in order.
type recordingPublisher struct {
	mu       sync.Mutex
	names    []domain.EventName
	payloads []any
}

func (p *recordingPublisher) Publish(name domain.EventName, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, name)
	p.payloads = append(p.payloads, payload)
}

func (p *recordingPublisher) count(name domain.EventName) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, got := range p.names {
		if got == name {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) last(name domain.EventName) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.names) - 1; i >= 0; i-- {
		if p.names[i] == name {
			return p.payloads[i]
		}
	}
	return nil
}
