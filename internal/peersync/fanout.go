package peersync

import "sync"

// fanout delivers snapshots to registered channels without blocking; a full
// channel drops the snapshot.
type fanout struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Snapshot
}

func newFanout() *fanout {
	return &fanout{subs: make(map[int]chan Snapshot)}
}

func (f *fanout) add(buf int) (int, chan Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	ch := make(chan Snapshot, buf)
	f.subs[f.next] = ch
	return f.next, ch
}

func (f *fanout) remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
}

func (f *fanout) send(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (f *fanout) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
