package gateway

import "sync"

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout pushes one payload to many clients through a bounded worker pool, so
// a broadcast over a large connected set cannot stall the handler that
// triggered it.
//
// Shutdown is signaled through stop, never by closing jobs: disconnect paths
// may still race a Broadcast against Close, and those late broadcasts must be
// dropped, not panic.
type Fanout struct {
	jobs     chan fanoutJob
	stop     chan struct{}
	stopOnce sync.Once
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue), stop: make(chan struct{})}
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-f.stop:
					return
				case job := <-f.jobs:
					for _, c := range job.conns {
						c.Enqueue(job.payload)
					}
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Broadcast(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	select {
	case f.jobs <- fanoutJob{conns: conns, payload: payload}:
	case <-f.stop:
	}
}

func (f *Fanout) Close() {
	f.stopOnce.Do(func() { close(f.stop) })
}
