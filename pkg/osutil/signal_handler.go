package osutil

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gyuho/mlcache/pkg/xlog"
)

var logger = xlog.NewLogger("osutil", xlog.INFO)

// InterruptHandler is called once when the process is interrupted.
//
// (etcd pkg.osutil.InterruptHandler)
type InterruptHandler func()

var (
	mu                sync.Mutex
	interruptHandlers []InterruptHandler
)

// RegisterInterruptHandler registers h. Handlers run in registration order.
//
// (etcd pkg.osutil.RegisterInterruptHandler)
func RegisterInterruptHandler(h InterruptHandler) {
	mu.Lock()
	interruptHandlers = append(interruptHandlers, h)
	mu.Unlock()
}

func registered() []InterruptHandler {
	mu.Lock()
	defer mu.Unlock()

	hs := make([]InterruptHandler, len(interruptHandlers))
	copy(hs, interruptHandlers)
	return hs
}

// WaitForInterruptSignals runs the registered handlers on the first of sigs,
// then re-raises the signal so the process exits with it.
// It returns immediately; the returned channel is closed once the
// handlers have run.
//
// (etcd pkg.osutil.HandleInterrupts)
func WaitForInterruptSignals(sigs ...os.Signal) <-chan struct{} {
	notifier := make(chan os.Signal, 1)
	signal.Notify(notifier, sigs...)

	donec := make(chan struct{})
	go func() {
		sig := <-notifier
		logger.Warningf("received %v signal, shutting down", sig)

		for _, h := range registered() {
			h()
		}
		close(donec)

		signal.Stop(notifier)

		pid := syscall.Getpid()
		// the kernel does not kill pid 1 on its behalf
		if pid == 1 {
			os.Exit(0)
		}
		syscall.Kill(pid, sig.(syscall.Signal))
	}()
	return donec
}
