package bridge

import (
	"encoding/json"
	"sync"
)

type subscription struct {
	id      uint64
	handler Handler
}

// registry tracks push subscriptions per channel name.
type registry struct {
	mu   sync.RWMutex
	subs map[string][]subscription
	next uint64
}

func newRegistry() *registry {
	return &registry{subs: make(map[string][]subscription)}
}

// add registers handler on name. first reports whether name had no
// subscribers before this call.
func (r *registry) add(name string, handler Handler) (first bool, cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	first = len(r.subs[name]) == 0
	r.subs[name] = append(r.subs[name], subscription{id: id, handler: handler})

	var once sync.Once
	return first, func() {
		once.Do(func() { r.remove(name, id) })
	}
}

func (r *registry) remove(name string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[name]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(r.subs, name)
		} else {
			r.subs[name] = next
		}
		return
	}
}

// deliver invokes every handler of name with payload, in registration order,
// and returns how many ran. Handlers run without the lock held.
func (r *registry) deliver(name string, payload json.RawMessage) int {
	r.mu.RLock()
	subs := r.subs[name]
	r.mu.RUnlock()

	for _, s := range subs {
		s.handler(payload)
	}
	return len(subs)
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string][]subscription)
}
