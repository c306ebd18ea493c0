package session

import (
	"context"
	"errors"
	"time"

	"github.com/teslashibe/go-detect/pkg/camera"
)

// liveLoop runs camera cycles until ctx is cancelled. A failed read or
// detect is logged and retried after RetryDelay instead of the frame
// interval; the loop itself never stops on error.
func (s *Session) liveLoop(ctx context.Context, cam camera.Camera, interval time.Duration, done chan struct{}) {
	defer close(done)

	s.logger.Debug("live loop started", "interval", interval)
	defer s.logger.Debug("live loop stopped")

	for {
		wait := interval

		frame, err := cam.Read(ctx)
		if err == nil {
			_, err = s.runCycle(ctx, frame, SourceCamera)
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, ErrStaleCycle) {
			s.logger.Warn("live cycle failed, retrying", "error", err, "retry_in", s.cfg.RetryDelay)
			wait = s.cfg.RetryDelay
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}
	}
}
