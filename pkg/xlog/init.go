package xlog

import (
	"log"
	"os"
)

// stdLogWriter routes the standard library logger through xlog.
type stdLogWriter struct {
	l *Logger
}

func (s stdLogWriter) Write(b []byte) (int, error) {
	s.l.log(INFO, string(b))
	return len(b), nil
}

func init() {
	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(stdLogWriter{l: NewLogger("log", INFO)})

	// by default, log-output to stderr
	SetFormatter(NewDefaultFormatter(os.Stderr))
}
