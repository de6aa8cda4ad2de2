package orchestrator

import "time"

// This file holds the background loop wrapper; the work it does (Sweep) is
// tested directly.

func (j *Janitor) loop() {
	defer j.wg.Done()

	interval := j.config.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep(j.ctx)
		case <-j.ctx.Done():
			return
		}
	}
}
