package listener

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

// recordingLogger captures Error calls.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Warn(string, ...any) {}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func TestEvent_Accessors(t *testing.T) {
	ev := Event{"type": "device_update", "device_id": "d1"}
	if ev.Type() != TypeDeviceUpdate || ev.DeviceID() != "d1" {
		t.Errorf("Type()/DeviceID() = %q/%q", ev.Type(), ev.DeviceID())
	}

	odd := Event{"type": 3, "device_id": nil}
	if odd.Type() != "" || odd.DeviceID() != "" {
		t.Errorf("non-string fields should read as empty, got %q/%q", odd.Type(), odd.DeviceID())
	}
}

func TestNotify_Order(t *testing.T) {
	r := NewRegistry()
	var got []string

	for _, name := range []string{"a", "b", "c"} {
		name := name
		r.SubscribeFunc(func(Event) error {
			got = append(got, name)
			return nil
		})
	}

	r.Notify(Event{"type": TypeDeviceUpdate})

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("delivery order = %v, want %v", got, want)
	}
}

func TestNotify_FailureIsolation(t *testing.T) {
	logger := &recordingLogger{}
	r := NewRegistry()
	r.SetLogger(logger)

	var reached []string
	r.SubscribeFunc(func(Event) error { reached = append(reached, "first"); return nil })
	r.SubscribeFunc(func(Event) error { return errors.New("boom") })
	r.SubscribeFunc(func(Event) error { panic("kaboom") })
	r.SubscribeFunc(func(Event) error { reached = append(reached, "last"); return nil })

	r.Notify(Event{"type": TypeDeviceUpdate})

	if want := []string{"first", "last"}; !reflect.DeepEqual(reached, want) {
		t.Errorf("reached = %v, want %v", reached, want)
	}
	if len(logger.errors) != 2 {
		t.Errorf("logged %d failures, want 2", len(logger.errors))
	}
}

func TestSubscribe_DuplicateListener(t *testing.T) {
	r := NewRegistry()
	count := 0
	l := Func(func(Event) error { count++; return nil })

	first := r.Subscribe(l)
	r.Subscribe(l)

	r.Notify(Event{})
	if count != 2 {
		t.Fatalf("duplicate registration delivered %d times, want 2", count)
	}

	first.Unsubscribe()
	r.Notify(Event{})
	if count != 3 {
		t.Errorf("after removing one entry delivered total %d, want 3", count)
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	r := NewRegistry()
	sub := r.SubscribeFunc(func(Event) error { return nil })
	keep := r.SubscribeFunc(func(Event) error { return nil })

	sub.Unsubscribe()
	sub.Unsubscribe()
	r.Unsubscribe(sub)
	r.Unsubscribe(Subscription{})
	NewRegistry().Unsubscribe(keep) // handle from another registry

	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestSubscribe_Nil(t *testing.T) {
	r := NewRegistry()

	sub := r.Subscribe(nil)
	sub.Unsubscribe()
	r.SubscribeFunc(nil)

	if r.Len() != 0 {
		t.Errorf("Len() = %d after nil subscriptions, want 0", r.Len())
	}
	r.Notify(Event{})
}

func TestNotify_UnsubscribeDuringDelivery(t *testing.T) {
	r := NewRegistry()
	var calls []string

	var self Subscription
	self = r.SubscribeFunc(func(Event) error {
		calls = append(calls, "once")
		self.Unsubscribe()
		return nil
	})
	r.SubscribeFunc(func(Event) error {
		calls = append(calls, "always")
		return nil
	})

	r.Notify(Event{})
	r.Notify(Event{})

	if want := []string{"once", "always", "always"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestNotify_Concurrent(t *testing.T) {
	r := NewRegistry()
	var mu sync.Mutex
	total := 0
	r.SubscribeFunc(func(Event) error {
		mu.Lock()
		total++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Notify(Event{})
			sub := r.SubscribeFunc(func(Event) error { return nil })
			sub.Unsubscribe()
		}()
	}
	wg.Wait()

	if total != 10 {
		t.Errorf("total deliveries = %d, want 10", total)
	}
}
