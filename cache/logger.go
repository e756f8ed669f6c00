package cache

import "github.com/gyuho/mlcache/pkg/xlog"

// Logger defines logging interface for cache nodes.
type Logger interface {
	Panic(v ...interface{})
	Panicln(v ...interface{})
	Panicf(format string, v ...interface{})

	Fatal(v ...interface{})
	Fatalln(v ...interface{})
	Fatalf(format string, v ...interface{})

	Error(v ...interface{})
	Errorln(v ...interface{})
	Errorf(format string, v ...interface{})

	Warning(v ...interface{})
	Warningln(v ...interface{})
	Warningf(format string, v ...interface{})

	Print(v ...interface{})
	Println(v ...interface{})
	Printf(format string, v ...interface{})

	Info(v ...interface{})
	Infoln(v ...interface{})
	Infof(format string, v ...interface{})

	Debug(v ...interface{})
	Debugln(v ...interface{})
	Debugf(format string, v ...interface{})
}

var defaultLogger Logger = xlog.NewLogger("cache", xlog.INFO)

// SetLogger replaces the logger used by nodes whose Config.Logger is nil.
// It must be called before any node starts.
func SetLogger(l Logger) {
	defaultLogger = l
}
