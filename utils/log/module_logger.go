package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module name constants - add modules as needed.
const (
	ModuleConn     = "conn"
	ModuleMySQL    = "mysql"
	ModuleStitcher = "stitcher"
	ModuleRecord   = "record"
)

// ModuleLoggerFactory creates module-specific loggers, so a single
// `--debug=mysql` style knob can turn on verbose decode logging for one
// component of the tick without drowning the rest in noise.
type ModuleLoggerFactory struct {
	baseLogger  *zap.Logger
	globalDebug bool
	moduleDebug map[string]bool
}

// GlobalLoggerFactory is the factory initialized during startup.
var GlobalLoggerFactory *ModuleLoggerFactory

func NewModuleLoggerFactory(baseLogger *zap.Logger, globalDebug bool, moduleDebug map[string]bool) *ModuleLoggerFactory {
	if moduleDebug == nil {
		moduleDebug = make(map[string]bool)
	}
	return &ModuleLoggerFactory{
		baseLogger:  baseLogger,
		globalDebug: globalDebug,
		moduleDebug: moduleDebug,
	}
}

// InitGlobalFactory initializes the global logger factory.
func InitGlobalFactory(baseLogger *zap.Logger, globalDebug bool, moduleDebug map[string]bool) {
	GlobalLoggerFactory = NewModuleLoggerFactory(baseLogger, globalDebug, moduleDebug)
}

// GetLogger returns a logger for a specific module with appropriate log level.
func (f *ModuleLoggerFactory) GetLogger(moduleName string) *zap.Logger {
	namedLogger := f.baseLogger.Named(moduleName)

	if f.IsDebugEnabled(moduleName) {
		return namedLogger
	}

	return namedLogger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &levelFilterCore{Core: core, minLevel: zapcore.InfoLevel}
	}))
}

// IsDebugEnabled checks if debug is enabled for a module.
func (f *ModuleLoggerFactory) IsDebugEnabled(moduleName string) bool {
	if f.globalDebug {
		return true
	}
	return f.moduleDebug[moduleName]
}

// GetModuleLogger is a convenience function using the global factory.
func GetModuleLogger(moduleName string) *zap.Logger {
	if GlobalLoggerFactory == nil {
		logger, _, err := New()
		if err != nil {
			logger = zap.NewNop()
		}
		return logger.Named(moduleName)
	}
	return GlobalLoggerFactory.GetLogger(moduleName)
}

// levelFilterCore filters logs below minimum level.
type levelFilterCore struct {
	zapcore.Core
	minLevel zapcore.Level
}

func (c *levelFilterCore) Enabled(level zapcore.Level) bool {
	return level >= c.minLevel && c.Core.Enabled(level)
}

func (c *levelFilterCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return c.Core.Check(entry, ce)
	}
	return ce
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core:     c.Core.With(fields),
		minLevel: c.minLevel,
	}
}
