package logger

import "sync"

// named holds per-component loggers, usually built from Config.Components.
var named sync.Map

// Register makes l the logger Get returns for name.
func Register(name string, l *Logger) {
	named.Store(name, l)
}

// Get returns the logger registered for name, or the global logger tagged
// with name. Stages resolve their default logger through it, so a level
// override in Config.Components reaches them.
func Get(name string) *Logger {
	if l, ok := named.Load(name); ok {
		return l.(*Logger)
	}
	return GetGlobalLogger().WithComponent(name)
}

// registerLevels registers a component-tagged child of base for every
// override in levels.
func registerLevels(base *Logger, levels map[string]string) {
	for name, level := range levels {
		Register(name, base.WithComponent(name).WithLevel(level))
	}
}
