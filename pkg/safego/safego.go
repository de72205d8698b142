package safego

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Go 启动带 panic 恢复的 goroutine
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// GoCtx 与 Go 相同，但把 ctx 交给 fn；ctx 取消后 fn 应自行返回
func GoCtx(ctx context.Context, logger *zap.Logger, name string, fn func(ctx context.Context)) {
	go func() {
		defer Recover(logger, name)
		fn(ctx)
	}()
}

// Recover 在 defer 中使用，记录 panic 并吞掉
func Recover(logger *zap.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error("Goroutine panicked",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.Stack("stack"),
		)
	}
}

// Call 同步执行 fn，把 panic 转成 error
func Call(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	return fn()
}
