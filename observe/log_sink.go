package observe

import (
	"fmt"

	"github.com/gyuho/mlcache/cachepb"
	"github.com/gyuho/mlcache/pkg/xlog"
)

// Sink receives protocol events. It satisfies cache.Observer.
type Sink interface {
	Observe(ev cachepb.Event)
}

// Format renders ev in three columns: node, message type and detail.
func Format(ev cachepb.Event) string {
	info := ev.Info
	if info == "" {
		info = cachepb.DescribeMessage(ev.Message)
	}
	return fmt.Sprintf("%-8.8s | %-13.13s | %s %s", ev.Node, ev.Message.Type, ev.Operation, info)
}

type logSink struct {
	lg  *xlog.Logger
	lvl xlog.LogLevel
}

// NewLogSink returns a Sink that writes every event to lg.
// Drops and abandons are logged at WARN, the rest at lvl.
func NewLogSink(lg *xlog.Logger, lvl xlog.LogLevel) Sink {
	return &logSink{lg: lg, lvl: lvl}
}

func (s *logSink) Observe(ev cachepb.Event) {
	lvl := s.lvl
	if ev.Operation == cachepb.OPERATION_DROP || ev.Operation == cachepb.OPERATION_ABANDON {
		lvl = xlog.WARN
	}
	if !s.lg.Enabled(lvl) {
		return
	}

	txt := Format(ev)
	switch lvl {
	case xlog.WARN:
		s.lg.Warning(txt)
	case xlog.DEBUG:
		s.lg.Debug(txt)
	default:
		s.lg.Info(txt)
	}
}

type multi []Sink

// Multi returns a Sink that hands every event to each of sinks, in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Observe(ev cachepb.Event) {
	for _, s := range m {
		s.Observe(ev)
	}
}
