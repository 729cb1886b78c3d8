package model

import (
	"github.com/arloliu/go-secs/logger"
	"k8s.io/klog/v2"
)

var _ logger.Logger = (*klogLogger)(nil)

// klogLogger routes go-secs connection logs into klog. Debug maps to V(5),
// Info to V(4) so the link stays quiet at the default verbosity.
type klogLogger struct {
	level logger.LogLevel
	kv    []any
}

func newKlogLogger(kv ...any) *klogLogger {
	return &klogLogger{level: logger.InfoLevel, kv: kv}
}

func (l *klogLogger) with(kv []any) []any {
	if len(l.kv) == 0 {
		return kv
	}
	all := make([]any, 0, len(l.kv)+len(kv))
	all = append(all, l.kv...)
	return append(all, kv...)
}

func (l *klogLogger) Debug(msg string, keysAndValues ...any) {
	if l.level <= logger.DebugLevel {
		klog.V(5).InfoS(msg, l.with(keysAndValues)...)
	}
}

func (l *klogLogger) Info(msg string, keysAndValues ...any) {
	if l.level <= logger.InfoLevel {
		klog.V(4).InfoS(msg, l.with(keysAndValues)...)
	}
}

func (l *klogLogger) Warn(msg string, keysAndValues ...any) {
	if l.level <= logger.WarnLevel {
		klog.V(2).InfoS(msg, l.with(keysAndValues)...)
	}
}

func (l *klogLogger) Error(msg string, keysAndValues ...any) {
	klog.ErrorS(nil, msg, l.with(keysAndValues)...)
}

func (l *klogLogger) Fatal(msg string, keysAndValues ...any) {
	klog.ErrorS(nil, msg, l.with(keysAndValues)...)
	klog.FlushAndExit(klog.ExitFlushTimeout, 1)
}

func (l *klogLogger) With(keyValues ...any) logger.Logger {
	return &klogLogger{level: l.level, kv: l.with(keyValues)}
}

func (l *klogLogger) Level() logger.LogLevel { return l.level }

func (l *klogLogger) SetLevel(level logger.LogLevel) { l.level = level }
