package usecase

import "sync"

// dispatcher delivers a session's state snapshots to observers in the order
// they were enqueued, on a goroutine of its own. enqueue never blocks on
// observer I/O.
type dispatcher struct {
	mu      sync.Mutex
	queue   []State
	running bool
	idle    *sync.Cond
}

func (d *dispatcher) enqueue(st State, deliver func(State)) {
	d.mu.Lock()
	d.queue = append(d.queue, st)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	go d.drain(deliver)
}

func (d *dispatcher) drain(deliver func(State)) {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			if d.idle != nil {
				d.idle.Broadcast()
			}
			d.mu.Unlock()
			return
		}
		st := d.queue[0]
		d.queue[0] = State{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		deliver(st)
	}
}

// flush blocks until every enqueued snapshot has been delivered.
func (d *dispatcher) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.idle == nil {
		d.idle = sync.NewCond(&d.mu)
	}
	for d.running {
		d.idle.Wait()
	}
}
