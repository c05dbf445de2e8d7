package service

import (
	"context"
	"errors"
	"sync"
)

type degradationKey struct{}

// degradation 收集一轮处理中走过的兜底路径。
type degradation struct {
	mu          sync.Mutex
	reasons     []string
	oracleDown  bool
	catalogDown bool
}

func withDegradation(ctx context.Context, d *degradation) context.Context {
	return context.WithValue(ctx, degradationKey{}, d)
}

func degradationFrom(ctx context.Context) *degradation {
	d, _ := ctx.Value(degradationKey{}).(*degradation)
	return d
}

func isMalformed(err error) bool {
	return errors.Is(err, ErrOracleMalformedOutput)
}

// 以下方法允许 nil 接收者，未挂载追踪器的调用（例如直接检索接口）不做记录。
func (d *degradation) oracleFailed(component string, err error) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if errors.Is(err, ErrOracleUnavailable) {
		d.oracleDown = true
		d.add(component + ":oracle_unavailable")
		return
	}
	d.add(component + ":oracle_malformed")
}

func (d *degradation) catalogFailed() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.catalogDown = true
	d.add("search:catalog_unavailable")
}

func (d *degradation) mark(reason string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.add(reason)
}

func (d *degradation) add(reason string) {
	for _, r := range d.reasons {
		if r == reason {
			return
		}
	}
	d.reasons = append(d.reasons, reason)
}

func (d *degradation) oracleIsDown() bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.oracleDown
}

func (d *degradation) snapshot() (reasons []string, oracleDown, catalogDown bool) {
	if d == nil {
		return nil, false, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.reasons...), d.oracleDown, d.catalogDown
}
