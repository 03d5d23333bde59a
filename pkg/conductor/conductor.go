// Package conductor starts long-running services in order and shuts them
// down together, on demand or on a termination signal.
package conductor

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// DefaultStopTimeout bounds how long services get to wind down before the
// conductor gives up on them.
const DefaultStopTimeout = 10 * time.Second

// A Service is anything the conductor can supervise. Run must not block: it
// starts the service's own goroutines, signals started once the service is
// usable, and arranges for a context received on stop to begin shutdown,
// signalling stopped when done.
type Service interface {
	Run(started, stopped chan bool, stop chan context.Context) error
}

// An Option configures a Conductor.
type Option func(*Conductor)

// HookSignals makes the conductor begin shutdown on SIGINT or SIGTERM.
func HookSignals() Option {
	return func(c *Conductor) {
		c.hookSignals = true
	}
}

// Noisy makes the conductor log service lifecycle transitions.
func Noisy() Option {
	return func(c *Conductor) {
		c.noisy = true
	}
}

// StopTimeout overrides DefaultStopTimeout.
func StopTimeout(d time.Duration) Option {
	return func(c *Conductor) {
		c.stopTimeout = d
	}
}

type service struct {
	name    string
	svc     Service
	started chan bool
	stopped chan bool
	stop    chan context.Context
}

// A Conductor supervises a set of named services. Services start in the
// order they were added and stop in reverse order.
type Conductor struct {
	services    []*service
	stopping    chan struct{}
	done        chan bool
	noisy       bool
	hookSignals bool
	stopTimeout time.Duration
}

func NewConductor(opts ...Option) *Conductor {
	c := &Conductor{
		stopping:    make(chan struct{}),
		done:        make(chan bool),
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service registers a service under a name used in lifecycle logs. Must be
// called before Start.
func (c *Conductor) Service(name string, svc Service) {
	c.services = append(c.services, &service{
		name:    name,
		svc:     svc,
		started: make(chan bool),
		stopped: make(chan bool),
		stop:    make(chan context.Context),
	})
}

// Start runs every registered service and returns a channel that closes
// once all of them have stopped. A service failing to start aborts the
// remaining startups and stops whatever already started.
func (c *Conductor) Start() chan bool {
	if c.hookSignals {
		go c.watchSignals()
	}

	for i, s := range c.services {
		if c.noisy {
			log.Printf("[conductor] starting %s", s.name)
		}
		if err := s.svc.Run(s.started, s.stopped, s.stop); err != nil {
			log.Printf("[conductor] %s failed to start: %v", s.name, err)
			c.stopServices(c.services[:i])
			close(c.done)
			return c.done
		}
		<-s.started
		if c.noisy {
			log.Printf("[conductor] %s started", s.name)
		}
	}

	go func() {
		<-c.stopping
		c.stopServices(c.services)
		close(c.done)
	}()

	return c.done
}

// Stop begins shutdown of all services. Safe to call more than once.
func (c *Conductor) Stop() {
	select {
	case <-c.stopping:
	default:
		close(c.stopping)
	}
}

func (c *Conductor) watchSignals() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	if c.noisy {
		log.Printf("[conductor] received %s, stopping services", s)
	}
	c.Stop()
}

// stopServices shuts down the given services in reverse order, giving the
// whole group a shared deadline.
func (c *Conductor) stopServices(services []*service) {
	ctx, cancel := context.WithTimeout(context.Background(), c.stopTimeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		if c.noisy {
			log.Printf("[conductor] stopping %s", s.name)
		}

		select {
		case s.stop <- ctx:
			// Also close the channel: services may wait on stop from more
			// than one goroutine.
			close(s.stop)
		case <-ctx.Done():
			log.Printf("[conductor] gave up stopping %s: %v", s.name, ctx.Err())
			continue
		}

		select {
		case <-s.stopped:
			if c.noisy {
				log.Printf("[conductor] %s stopped", s.name)
			}
		case <-ctx.Done():
			log.Printf("[conductor] %s did not stop in time", s.name)
		}
	}
}
