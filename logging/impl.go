package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	// appenders is shared with subloggers so that an appender added to a parent (e.g. a log file
	// opened after startup) reaches every component logger.
	appenders *appenderSet
}

type appenderSet struct {
	mu   sync.RWMutex
	list []Appender
}

func (as *appenderSet) add(appender Appender) {
	as.mu.Lock()
	as.list = append(as.list, appender)
	as.mu.Unlock()
}

func (as *appenderSet) snapshot() []Appender {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return append([]Appender(nil), as.list...)
}

// logEntry embeds a zapcore Entry and slice of Fields.
type logEntry struct {
	zapcore.Entry
	fields []zapcore.Field
}

func newImpl(name string, level Level, inUTC bool, appenders ...Appender) *impl {
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(level),
		inUTC:     inUTC,
		appenders: &appenderSet{list: appenders},
	}
}

func (imp *impl) newLogEntry(logLevel Level, msg string) *logEntry {
	ret := &logEntry{}
	ret.Time = time.Now()
	if imp.inUTC {
		ret.Time = ret.Time.UTC()
	}
	ret.Level = logLevel.AsZap()
	ret.LoggerName = imp.name
	ret.Message = msg
	ret.Caller = getCaller()
	return ret
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders.add(appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Level() zapcore.Level {
	return imp.GetLevel().AsZap()
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}

	return &impl{
		name:      newName,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.AsZap().Desugar()
}

func (imp *impl) Named(name string) *zap.SugaredLogger {
	return imp.AsZap().Named(name)
}

func (imp *impl) With(args ...interface{}) *zap.SugaredLogger {
	return imp.AsZap().With(args...)
}

func (imp *impl) WithOptions(opts ...zap.Option) *zap.SugaredLogger {
	return imp.AsZap().WithOptions(opts...)
}

func (imp *impl) Sync() error {
	var errs []error
	for _, appender := range imp.appenders.snapshot() {
		if err := appender.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	// Appenders that are also a `zapcore.Core` (the test observer) are teed into the returned
	// logger so that output from zap-only code paths is still captured.
	var copiedCores []zapcore.Core
	for _, appender := range imp.appenders.snapshot() {
		if core, ok := appender.(zapcore.Core); ok {
			copiedCores = append(copiedCores, core)
		}
	}

	config := NewZapLoggerConfig()
	config.Level = GlobalLogLevel
	ret := zap.Must(config.Build()).Sugar().Named(imp.name)
	for _, core := range copiedCores {
		core := core
		ret = ret.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}
	return ret
}

func (imp *impl) shouldLog(ctx context.Context, logLevel Level) bool {
	if GlobalLogLevel.Level() == zapcore.DebugLevel {
		return true
	}
	if IsDebugMode(ctx) {
		return true
	}
	return logLevel >= imp.level.Get()
}

func (imp *impl) write(entry *logEntry) {
	for _, appender := range imp.appenders.snapshot() {
		if err := appender.Write(entry.Entry, entry.fields); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}

func (imp *impl) format(logLevel Level, args ...interface{}) *logEntry {
	return imp.newLogEntry(logLevel, fmt.Sprint(args...))
}

func (imp *impl) formatf(logLevel Level, template string, args ...interface{}) *logEntry {
	return imp.newLogEntry(logLevel, fmt.Sprintf(template, args...))
}

// formatw turns `keysAndValues` into zap fields where the odd elements are the keys and their
// following even counterpart is the value.
func (imp *impl) formatw(logLevel Level, msg string, keysAndValues ...interface{}) *logEntry {
	entry := imp.newLogEntry(logLevel, msg)
	entry.fields = make([]zapcore.Field, 0, len(keysAndValues)/2)
	for keyIdx := 0; keyIdx < len(keysAndValues); keyIdx += 2 {
		keyObj := keysAndValues[keyIdx]
		var keyStr string
		if stringer, ok := keyObj.(fmt.Stringer); ok {
			keyStr = stringer.String()
		} else {
			keyStr = fmt.Sprintf("%v", keyObj)
		}

		if keyIdx+1 < len(keysAndValues) {
			entry.fields = append(entry.fields, zap.Any(keyStr, keysAndValues[keyIdx+1]))
		} else {
			// API mis-use. Slip in an error message rather than silently discarding the key.
			entry.fields = append(entry.fields, zap.Any(keyStr, errors.New("unpaired log key")))
		}
	}
	return entry
}

// The helpers below keep every exported method at the same stack depth above `getCaller`.

func (imp *impl) logArgs(ctx context.Context, logLevel Level, args ...interface{}) {
	if imp.shouldLog(ctx, logLevel) {
		imp.write(imp.format(logLevel, args...))
	}
}

func (imp *impl) logf(ctx context.Context, logLevel Level, template string, args ...interface{}) {
	if imp.shouldLog(ctx, logLevel) {
		imp.write(imp.formatf(logLevel, template, args...))
	}
}

func (imp *impl) logw(ctx context.Context, logLevel Level, msg string, keysAndValues ...interface{}) {
	if imp.shouldLog(ctx, logLevel) {
		imp.write(imp.formatw(logLevel, msg, keysAndValues...))
	}
}

func (imp *impl) fatalArgs(args ...interface{}) {
	imp.write(imp.format(ERROR, args...))
	os.Exit(1)
}

func (imp *impl) fatalf(template string, args ...interface{}) {
	imp.write(imp.formatf(ERROR, template, args...))
	os.Exit(1)
}

func (imp *impl) fatalw(msg string, keysAndValues ...interface{}) {
	imp.write(imp.formatw(ERROR, msg, keysAndValues...))
	os.Exit(1)
}

func (imp *impl) Debug(args ...interface{}) { imp.logArgs(context.Background(), DEBUG, args...) }

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.logf(context.Background(), DEBUG, template, args...)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.logw(context.Background(), DEBUG, msg, keysAndValues...)
}

func (imp *impl) CDebug(ctx context.Context, args ...interface{}) { imp.logArgs(ctx, DEBUG, args...) }

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	imp.logf(ctx, DEBUG, template, args...)
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.logw(ctx, DEBUG, msg, keysAndValues...)
}

func (imp *impl) Info(args ...interface{}) { imp.logArgs(context.Background(), INFO, args...) }

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.logf(context.Background(), INFO, template, args...)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.logw(context.Background(), INFO, msg, keysAndValues...)
}

func (imp *impl) CInfo(ctx context.Context, args ...interface{}) { imp.logArgs(ctx, INFO, args...) }

func (imp *impl) CInfof(ctx context.Context, template string, args ...interface{}) {
	imp.logf(ctx, INFO, template, args...)
}

func (imp *impl) CInfow(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.logw(ctx, INFO, msg, keysAndValues...)
}

func (imp *impl) Warn(args ...interface{}) { imp.logArgs(context.Background(), WARN, args...) }

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.logf(context.Background(), WARN, template, args...)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.logw(context.Background(), WARN, msg, keysAndValues...)
}

func (imp *impl) CWarn(ctx context.Context, args ...interface{}) { imp.logArgs(ctx, WARN, args...) }

func (imp *impl) CWarnf(ctx context.Context, template string, args ...interface{}) {
	imp.logf(ctx, WARN, template, args...)
}

func (imp *impl) CWarnw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.logw(ctx, WARN, msg, keysAndValues...)
}

func (imp *impl) Error(args ...interface{}) { imp.logArgs(context.Background(), ERROR, args...) }

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.logf(context.Background(), ERROR, template, args...)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.logw(context.Background(), ERROR, msg, keysAndValues...)
}

func (imp *impl) CError(ctx context.Context, args ...interface{}) { imp.logArgs(ctx, ERROR, args...) }

func (imp *impl) CErrorf(ctx context.Context, template string, args ...interface{}) {
	imp.logf(ctx, ERROR, template, args...)
}

func (imp *impl) CErrorw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.logw(ctx, ERROR, msg, keysAndValues...)
}

// These Fatal* methods log as errors then exit the process.
func (imp *impl) Fatal(args ...interface{}) { imp.fatalArgs(args...) }

func (imp *impl) Fatalf(template string, args ...interface{}) { imp.fatalf(template, args...) }

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) { imp.fatalw(msg, keysAndValues...) }

// Return example: "logging/impl_test.go:36".
func getCaller() zapcore.EntryCaller {
	var ok bool
	var entryCaller zapcore.EntryCaller
	// getCaller <- newLogEntry <- format* <- log*/fatal* <- exported method <- caller.
	const skipToLogCaller = 5
	entryCaller.PC, entryCaller.File, entryCaller.Line, ok = runtime.Caller(skipToLogCaller)
	if !ok {
		return entryCaller
	}
	entryCaller.Defined = true

	runtimeFunc := runtime.FuncForPC(entryCaller.PC)
	if runtimeFunc != nil {
		entryCaller.Function = runtimeFunc.Name()
	}
	return entryCaller
}
