package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper is the safety net for sessions whose termination event never
// arrived. It reaps from the machine's local tracking on a fixed
// interval; it is not a substitute for release or disconnect handling.
type Sweeper struct {
	machine  *Machine
	interval time.Duration
	ceiling  time.Duration
	log      *logrus.Entry
}

func NewSweeper(m *Machine, interval, ceiling time.Duration, log *logrus.Entry) *Sweeper {
	return &Sweeper{machine: m, interval: interval, ceiling: ceiling, log: log}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithFields(logrus.Fields{
		"interval": s.interval.String(),
		"ceiling":  s.ceiling.String(),
	}).Info("sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping")
			return
		case <-ticker.C:
			if n := s.machine.Sweep(ctx, s.ceiling); n > 0 {
				s.log.WithField("reaped", n).Warn("force-terminated stale sessions")
			}
		}
	}
}
