package server

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 1024

// WorkerFunction processes one task (a net.Conn, here). Grounded directly
// on the teacher's internal/worker.go.
type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool maintains a fixed number of goroutines pulling tasks off a
// shared channel, supervised by one tomb so the whole pool shuts down
// together when the tomb dies.
type WorkerPool struct {
	n     int
	tasks chan any
	work  WorkerFunction
}

// NewWorkerPool constructs a pool of size workers.
func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, taskChanSize),
		n:     size,
	}
}

// AddTask enqueues a task for some worker to pick up.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup spawns pool.n workers under t; each runs until t dies. A failed
// task is logged and the worker goes on; no worker is ever replaced.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	pool.work = work
	log.Info().Int("workers", pool.n).Msg("starting worker pool")
	for i := 0; i < pool.n; i++ {
		t.Go(func() error {
			return pool.runWorker(t)
		})
	}
}

func (pool *WorkerPool) runWorker(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := pool.work(t, task); err != nil {
				log.Error().Err(err).Msg("worker task failed")
			}
		}
	}
}
