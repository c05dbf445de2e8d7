package service

import (
	"auto-advisor-go/pkg/llm"
	"auto-advisor-go/pkg/metrics"
	"context"
	"fmt"
	"time"
)

// TextOracle 是外部文本推理服务：输入 prompt，返回文本。llm.Client 满足该接口。
type TextOracle interface {
	Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// oracleCaller 统一处理超时、错误归类与回退计数。
type oracleCaller struct {
	oracle  TextOracle
	timeout time.Duration
}

func newOracleCaller(oracle TextOracle, timeout time.Duration) oracleCaller {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return oracleCaller{oracle: oracle, timeout: timeout}
}

func (o oracleCaller) ask(ctx context.Context, component, prompt string) (string, error) {
	if o.oracle == nil {
		err := fmt.Errorf("%w: not configured", ErrOracleUnavailable)
		o.fallback(ctx, component, err)
		return "", err
	}
	if degradationFrom(ctx).oracleIsDown() {
		// 本轮已确认不可用，不再等待超时
		err := fmt.Errorf("%w: skipped after earlier failure", ErrOracleUnavailable)
		o.fallback(ctx, component, err)
		return "", err
	}
	out, err := o.oracle.Complete(ctx, prompt, o.timeout)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		o.fallback(ctx, component, err)
		return "", err
	}
	return out, nil
}

// askJSON 调用 oracle 并把回答中的第一个 JSON 对象解析到 v。
func (o oracleCaller) askJSON(ctx context.Context, component, prompt string, v interface{}) error {
	out, err := o.ask(ctx, component, prompt)
	if err != nil {
		return err
	}
	if err := llm.ExtractJSON(out, v); err != nil {
		return o.malformed(ctx, component, err.Error())
	}
	return nil
}

// malformed 记录一次非法输出并返回对应错误。
func (o oracleCaller) malformed(ctx context.Context, component, detail string) error {
	err := fmt.Errorf("%w: %s", ErrOracleMalformedOutput, detail)
	o.fallback(ctx, component, err)
	return err
}

func (o oracleCaller) fallback(ctx context.Context, component string, err error) {
	reason := "unavailable"
	if isMalformed(err) {
		reason = "malformed"
	}
	metrics.OracleFallbacks.WithLabelValues(component, reason).Inc()
	degradationFrom(ctx).oracleFailed(component, err)
}
