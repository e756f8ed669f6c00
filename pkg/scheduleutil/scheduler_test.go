package scheduleutil

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// (etcd pkg.schedule.TestFIFOSchedule)
func Test_Scheduler_fifo(t *testing.T) {
	s := NewSchedulerFIFO()
	defer s.Stop()

	next := 0
	errOdd := errors.New("odd")
	for i := 0; i < 100; i++ {
		i := i
		s.Schedule(Job{
			Name: fmt.Sprintf("job#%d", i),
			Run: func(ctx context.Context) error {
				if next != i {
					return fmt.Errorf("got %d, want %d", next, i)
				}
				next = i + 1
				if i%2 == 1 {
					return errOdd
				}
				return nil
			},
		})
	}

	rs := s.WaitFinish(100)
	if len(rs) != 100 {
		t.Fatalf("results expected 100, got %d", len(rs))
	}
	for i, r := range rs {
		if r.Name != fmt.Sprintf("job#%d", i) {
			t.Fatalf("#%d: unexpected name %q", i, r.Name)
		}
		if i%2 == 1 && r.Err != errOdd {
			t.Fatalf("#%d: error expected %v, got %v", i, errOdd, r.Err)
		}
		if i%2 == 0 && r.Err != nil {
			t.Fatalf("#%d: unexpected error %v", i, r.Err)
		}
	}
	if s.Pending() != 0 || s.Finished() != 100 {
		t.Fatalf("pending/finished expected 0/100, got %d/%d", s.Pending(), s.Finished())
	}
}

func Test_Scheduler_Stop(t *testing.T) {
	s := NewSchedulerFIFO()

	started := make(chan struct{})
	s.Schedule(Job{Name: "blocking", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	s.Schedule(Job{Name: "pending", Run: func(ctx context.Context) error { return ctx.Err() }})

	<-started
	s.Stop()
	s.Stop()

	rs := s.WaitFinish(2)
	for i, r := range rs {
		if r.Err != context.Canceled {
			t.Fatalf("#%d: error expected %v, got %v", i, context.Canceled, r.Err)
		}
	}
}
