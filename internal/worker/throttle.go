package worker

import (
	"context"

	"owlmoney/internal/ratelimit"
	ports "owlmoney/internal/sheets"
)

// Throttle wraps mirror so every write or delete first waits for a slot
// under key in limiter.
func Throttle(mirror Mirror, limiter *ratelimit.Limiter, key string) Mirror {
	return &throttledMirror{mirror: mirror, limiter: limiter, key: key}
}

type throttledMirror struct {
	mirror  Mirror
	limiter *ratelimit.Limiter
	key     string
}

func (m *throttledMirror) WriteTable(ctx context.Context, name string, t ports.Table) error {
	if err := m.limiter.Wait(ctx, m.key); err != nil {
		return err
	}
	return m.mirror.WriteTable(ctx, name, t)
}

func (m *throttledMirror) DeleteTable(ctx context.Context, name string) error {
	if err := m.limiter.Wait(ctx, m.key); err != nil {
		return err
	}
	return m.mirror.DeleteTable(ctx, name)
}
