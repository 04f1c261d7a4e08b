// ABOUTME: Device registry of currently reachable peers
// ABOUTME: One goroutine owns the map; subscribers get the latest sorted snapshot
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/yaba-app/yaba-sync/pkg/protocol"
)

type opKind int

const (
	opUpsert opKind = iota
	opRemove
	opClear
	opSnapshot
	opSubscribe
	opUnsubscribe
)

type op struct {
	kind   opKind
	device protocol.ConnectedDevice
	id     string
	sub    *subscriber
	reply  chan []protocol.ConnectedDevice
}

type subscriber struct {
	ch chan []protocol.ConnectedDevice
}

// Registry maps device id to the last resolved ConnectedDevice
type Registry struct {
	ops       chan op
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a registry and starts its owner goroutine
func New() *Registry {
	r := &Registry{
		ops:  make(chan op),
		done: make(chan struct{}),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run()
	}()

	return r
}

// Upsert replaces any entry with the same id
func (r *Registry) Upsert(device protocol.ConnectedDevice) {
	r.send(op{kind: opUpsert, device: device})
}

// Remove deletes the entry for id if present
func (r *Registry) Remove(id string) {
	r.send(op{kind: opRemove, id: id})
}

// Clear empties the registry and emits an empty snapshot
func (r *Registry) Clear() {
	r.send(op{kind: opClear})
}

// Snapshot returns the current devices sorted by name, then id
func (r *Registry) Snapshot() []protocol.ConnectedDevice {
	reply := make(chan []protocol.ConnectedDevice, 1)
	if !r.send(op{kind: opSnapshot, reply: reply}) {
		return []protocol.ConnectedDevice{}
	}
	return <-reply
}

// Subscribe returns a channel that immediately holds the current snapshot
// and then always holds the newest one. It is closed when ctx is done or
// the registry is closed.
func (r *Registry) Subscribe(ctx context.Context) <-chan []protocol.ConnectedDevice {
	sub := &subscriber{ch: make(chan []protocol.ConnectedDevice, 1)}
	if !r.send(op{kind: opSubscribe, sub: sub}) {
		close(sub.ch)
		return sub.ch
	}

	go func() {
		select {
		case <-ctx.Done():
			r.send(op{kind: opUnsubscribe, sub: sub})
		case <-r.done:
		}
	}()

	return sub.ch
}

// Close stops the owner goroutine and closes all subscriber channels
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Registry) send(o op) bool {
	select {
	case r.ops <- o:
		return true
	case <-r.done:
		return false
	}
}

func (r *Registry) run() {
	devices := make(map[string]protocol.ConnectedDevice)
	subs := make(map[*subscriber]struct{})

	defer func() {
		for s := range subs {
			close(s.ch)
		}
	}()

	for {
		select {
		case <-r.done:
			return
		case o := <-r.ops:
			switch o.kind {
			case opUpsert:
				devices[o.device.ID] = o.device
				publish(subs, sorted(devices))
			case opRemove:
				if _, ok := devices[o.id]; !ok {
					continue
				}
				delete(devices, o.id)
				publish(subs, sorted(devices))
			case opClear:
				clear(devices)
				publish(subs, sorted(devices))
			case opSnapshot:
				o.reply <- sorted(devices)
			case opSubscribe:
				subs[o.sub] = struct{}{}
				offer(o.sub, sorted(devices))
			case opUnsubscribe:
				if _, ok := subs[o.sub]; ok {
					delete(subs, o.sub)
					close(o.sub.ch)
				}
			}
		}
	}
}

// sorted returns a fresh slice; published snapshots are never mutated
func sorted(devices map[string]protocol.ConnectedDevice) []protocol.ConnectedDevice {
	out := make([]protocol.ConnectedDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func publish(subs map[*subscriber]struct{}, snapshot []protocol.ConnectedDevice) {
	for s := range subs {
		offer(s, snapshot)
	}
}

// offer replaces whatever snapshot the subscriber has not read yet
func offer(s *subscriber, snapshot []protocol.ConnectedDevice) {
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snapshot:
	default:
	}
}
