package transport

import (
	"fmt"
	"sync"
)

// InProcess is an in-process Transport useful for tests and for
// simulating P ranks as goroutines within one binary (see
// cmd/gravtreed's bench subcommand). Send calls the destination's
// handler directly on the caller's goroutine: the Transport is the
// only place concurrency crosses a rank boundary, keeping the core
// tree and pool code itself free of intra-process threading.
type InProcess struct {
	addr    string
	handler Handler
	mutex   sync.RWMutex
}

var (
	registryMutex sync.RWMutex
	registry      = map[string]*InProcess{}
)

// Start registers this transport under address, which must be unique
// among currently-started InProcess transports.
func (t *InProcess) Start(address string, handler Handler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.addr != "" {
		return fmt.Errorf("transport: already started")
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()

	if _, exists := registry[address]; exists {
		return fmt.Errorf("transport: address already in use: %s", address)
	}

	t.addr = address
	t.handler = handler
	registry[address] = t

	return nil
}

// Stop deregisters this transport.
func (t *InProcess) Stop() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.addr == "" {
		return nil
	}

	registryMutex.Lock()
	delete(registry, t.addr)
	registryMutex.Unlock()

	t.addr = ""
	t.handler = nil

	return nil
}

// Address returns the address this transport was started with.
func (t *InProcess) Address() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.addr
}

// Send delivers env to the transport registered at to.
func (t *InProcess) Send(to string, env Envelope) error {
	registryMutex.RLock()
	dst := registry[to]
	registryMutex.RUnlock()

	if dst == nil {
		return fmt.Errorf("transport: destination not found: %s", to)
	}

	dst.mutex.RLock()
	handler := dst.handler
	dst.mutex.RUnlock()

	if handler == nil {
		return fmt.Errorf("transport: destination has no handler: %s", to)
	}

	return handler(env)
}
