package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/logger"
)

// Policy 带指数退避和抖动的重试策略。
// 第 n 次失败后的等待时间为 min(MaxDelay, BaseDelay*2^n) 加上 [0, Jitter) 的随机量。
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 包装不应重试的错误，Do 遇到后立即返回原错误。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Backoff 计算第 attempt 次失败（从0开始）后的等待时间。
func (p Policy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return delay
}

// Do 按策略重复执行 fn 直到成功、耗尽次数或 ctx 取消。
// fn 返回 Permanent 包装的错误时不再重试。op 仅用于日志标识。
func (p Policy) Do(ctx context.Context, op string, fn func(attempt int) error) error {
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err = fn(attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if attempt < p.MaxAttempts-1 {
			wait := p.Backoff(attempt)
			logger.Warnf("[Retry] %s 失败 (第 %d/%d 次): %v，%v 后重试", op, attempt+1, p.MaxAttempts, err, wait.Round(100*time.Millisecond))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("%s 失败，已重试 %d 次: %w", op, p.MaxAttempts, err)
}
