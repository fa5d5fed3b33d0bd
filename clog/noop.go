package clog

// Noop 返回一个丢弃所有日志的 Logger
//
// 用于组件未注入 Logger 时的默认值，避免空指针检查。
func Noop() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field)          {}
func (noopLogger) Info(string, ...Field)           {}
func (noopLogger) Warn(string, ...Field)           {}
func (noopLogger) Error(string, ...Field)          {}
func (noopLogger) Fatal(string, ...Field)          {}
func (n noopLogger) With(...Field) Logger          { return n }
func (n noopLogger) WithNamespace(...string) Logger { return n }
func (noopLogger) SetLevel(Level) error            { return nil }
func (noopLogger) Flush()                          {}
