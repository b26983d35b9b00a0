package testhelper

import (
	"context"
	"fmt"
	"sync/atomic"
)

// ManualProber is a reachability.Prober whose result tests flip at will.
type ManualProber struct {
	online atomic.Bool
}

func NewManualProber(online bool) *ManualProber {
	p := &ManualProber{}
	p.online.Store(online)
	return p
}

// SetOnline changes what the next probe reports.
func (p *ManualProber) SetOnline(online bool) {
	p.online.Store(online)
}

// Probe mocks the upstream health check.
func (p *ManualProber) Probe(ctx context.Context) error {
	if p.online.Load() {
		return nil
	}
	return fmt.Errorf("manual prober: upstream unreachable")
}
