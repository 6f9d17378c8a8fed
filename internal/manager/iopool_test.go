package manager

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type orderLog struct {
	mu  sync.Mutex
	ran []string
}

func (l *orderLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ran = append(l.ran, name)
}

func (l *orderLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprint(l.ran)
}

func TestIOPoolKeepsPerKeyOrder(t *testing.T) {
	p := newIOPool(4)
	log := &orderLog{}
	gate := make(chan struct{})

	p.Do("steve", func(context.Context) {
		<-gate
		log.add("save")
	})
	p.Do("steve", func(context.Context) { log.add("load") })
	p.Do("alex", func(context.Context) { log.add("alex") })

	time.Sleep(20 * time.Millisecond)
	if got := log.String(); got != "[alex]" {
		t.Fatalf("expected only the other key to run, got %s", got)
	}
	close(gate)
	p.Wait()

	if got := log.String(); got != "[alex save load]" {
		t.Fatalf("expected [alex save load], got %s", got)
	}
}

func TestIOPoolBarrierOrdersAgainstEveryKey(t *testing.T) {
	p := newIOPool(4)
	log := &orderLog{}
	saveGate := make(chan struct{})
	writeGate := make(chan struct{})

	p.Do("steve", func(context.Context) {
		<-saveGate
		log.add("save")
	})
	p.Go(func(context.Context) {
		<-writeGate
		log.add("write")
	})
	p.Barrier(func(context.Context) { log.add("delete") })
	p.Do("alex", func(context.Context) { log.add("load") })

	time.Sleep(20 * time.Millisecond)
	if got := log.String(); got != "[]" {
		t.Fatalf("expected nothing to pass the barrier yet, got %s", got)
	}

	close(saveGate)
	time.Sleep(20 * time.Millisecond)
	if got := log.String(); got != "[save]" {
		t.Fatalf("expected barrier to wait for the unkeyed job, got %s", got)
	}

	close(writeGate)
	p.Wait()
	if got := log.String(); got != "[save write delete load]" {
		t.Fatalf("expected [save write delete load], got %s", got)
	}
}

func TestIOPoolWaitContext(t *testing.T) {
	p := newIOPool(1)
	gate := make(chan struct{})
	p.Go(func(context.Context) { <-gate })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.WaitContext(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(gate)
	if err := p.WaitContext(context.Background()); err != nil {
		t.Fatalf("expected idle pool, got %v", err)
	}
}
