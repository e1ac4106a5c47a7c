package recipe

import (
	"errors"
	"log/slog"
	"sync"
	"tinking/backend/internal/dom"
	"tinking/backend/internal/inspector"
	"tinking/backend/internal/protocol"
)

var ErrRelayClosed = errors.New("recipe: relay closed")

// Local delivers commands to an inspector running in process over a
// dom.Page. Events it produces go to the bound sink.
type Local struct {
	host *inspector.Host
	mu   sync.RWMutex
	sink func(protocol.Event)
}

func NewLocal(page *dom.Page, logger *slog.Logger) *Local {
	l := &Local{}
	l.host = inspector.NewHost(page, l.deliver, logger)
	return l
}

// Bind sets where events go. Events before Bind are discarded.
func (l *Local) Bind(sink func(protocol.Event)) {
	l.mu.Lock()
	l.sink = sink
	l.mu.Unlock()
}

func (l *Local) Send(cmd protocol.Command) error {
	return l.host.Handle(cmd)
}

func (l *Local) Host() *inspector.Host {
	return l.host
}

func (l *Local) Close() {
	l.host.Close()
}

func (l *Local) deliver(ev protocol.Event) {
	l.mu.RLock()
	sink := l.sink
	l.mu.RUnlock()
	if sink != nil {
		sink(ev)
	}
}

const relayBuffer = 64

// Relay fans commands out to remote pages, typically websocket clients.
// Commands sent while nobody listens are dropped; a slow listener loses
// commands rather than blocking the editor.
type Relay struct {
	mu     sync.Mutex
	subs   map[int]chan protocol.Command
	next   int
	closed bool
	logger *slog.Logger
}

func NewRelay(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{subs: make(map[int]chan protocol.Command), logger: logger}
}

func (r *Relay) Send(cmd protocol.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRelayClosed
	}
	for id, ch := range r.subs {
		select {
		case ch <- cmd:
		default:
			r.logger.Warn("relay listener lagging, command dropped", "listener", id, "command", cmd.CommandType())
		}
	}
	return nil
}

// Subscribe returns a channel of commands and a function that ends the
// subscription. The channel is closed when the subscription or the relay
// ends.
func (r *Relay) Subscribe() (<-chan protocol.Command, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan protocol.Command, relayBuffer)
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.next
	r.next++
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if c, ok := r.subs[id]; ok {
				delete(r.subs, id)
				close(c)
			}
		})
	}
}

func (r *Relay) Listeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}
