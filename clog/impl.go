package clog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// NamespaceKey 是日志中命名空间的字段名，用于标识组件来源
const NamespaceKey = "namespace"

// loggerImpl 是 Logger 接口的具体实现
type loggerImpl struct {
	handler   slog.Handler
	level     *slog.LevelVar
	sync      func() error
	namespace []string
	baseAttrs []slog.Attr
}

// newLogger 创建 Logger 实例（内部使用）
func newLogger(config *Config, opts *options) (Logger, error) {
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(level.toSlogLevel())

	writer, sync, err := openOutput(config, opts)
	if err != nil {
		return nil, err
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	return &loggerImpl{
		handler:   handler,
		level:     levelVar,
		sync:      sync,
		namespace: opts.namespaceParts,
	}, nil
}

// openOutput 根据配置打开输出目标
//
// 返回的 sync 函数用于 Flush 时同步文件缓冲区。
func openOutput(config *Config, opts *options) (io.Writer, func() error, error) {
	if opts.writer != nil {
		return opts.writer, nil, nil
	}

	switch config.Output {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", config.Output, err)
		}
		return f, f.Sync, nil
	}
}

func (l *loggerImpl) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }
func (l *loggerImpl) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields...) }
func (l *loggerImpl) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields...) }
func (l *loggerImpl) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

func (l *loggerImpl) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields...)
	l.Flush()
	os.Exit(1)
}

// With 创建一个带有预设字段的子 Logger
func (l *loggerImpl) With(fields ...Field) Logger {
	child := *l
	child.baseAttrs = append(append([]slog.Attr{}, l.baseAttrs...), fields...)
	return &child
}

// WithNamespace 创建一个扩展命名空间的子 Logger
func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	child := *l
	child.namespace = append(append([]string{}, l.namespace...), parts...)
	return &child
}

// SetLevel 动态调整日志级别
func (l *loggerImpl) SetLevel(level Level) error {
	l.level.Set(level.toSlogLevel())
	return nil
}

// Flush 强制同步所有缓冲区的日志
func (l *loggerImpl) Flush() {
	if l.sync != nil {
		_ = l.sync()
	}
}

func (l *loggerImpl) log(level Level, msg string, fields ...Field) {
	ctx := context.Background()
	slogLevel := level.toSlogLevel()
	if !l.handler.Enabled(ctx, slogLevel) {
		return
	}

	attrs := make([]slog.Attr, 0, len(l.baseAttrs)+len(fields)+1)
	attrs = append(attrs, l.baseAttrs...)
	attrs = append(attrs, fields...)
	if len(l.namespace) > 0 {
		attrs = append(attrs, slog.String(NamespaceKey, strings.Join(l.namespace, ".")))
	}

	// 获取正确的程序计数器(PC)值，用于准确的源码位置
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // skip: runtime.Callers, log, Debug/Info/...
	record := slog.NewRecord(time.Now(), slogLevel, msg, pcs[0])
	record.AddAttrs(attrs...)

	_ = l.handler.Handle(ctx, record)
}
