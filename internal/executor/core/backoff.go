package core

import (
	"context"
	"time"
)

// Backoff 第retry次重试前的等待时间：base * 2^(retry-1)
// base=1s 时依次为 1s、2s、4s
func Backoff(base time.Duration, retry int) time.Duration {
	if base <= 0 {
		return 0
	}
	if retry < 1 {
		retry = 1
	}
	if retry > 16 {
		retry = 16
	}
	return base << (retry - 1)
}

// Sleep 可取消的等待，ctx 先结束时返回 ctx.Err()
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
