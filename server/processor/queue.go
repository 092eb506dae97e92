package processor

import (
	"fmt"
	"sync"
	"time"

	"github.com/san-kum/probowler/server/analysis"
	"github.com/san-kum/probowler/server/metrics"
)

type ProcessingQueue struct {
	items      chan *QueueItem
	workers    int
	workerFunc func(*QueueItem)
	panicFunc  func(*QueueItem, any)
	wg         sync.WaitGroup
	shutdown   chan struct{}
	isRunning  bool
	mutex      sync.RWMutex
}

// QueueItem is one uploaded video waiting for pose extraction and analysis.
type QueueItem struct {
	JobID      string
	TrialID    string
	Filename   string
	Video      []byte
	Options    analysis.Options
	EnqueuedAt time.Time
}

// NewProcessingQueue starts workers that run workerFunc on queued items. panicFunc, if
// set, receives items whose worker panicked.
func NewProcessingQueue(queueSize, workers int, workerFunc func(*QueueItem), panicFunc func(*QueueItem, any)) *ProcessingQueue {
	queue := &ProcessingQueue{
		items:      make(chan *QueueItem, queueSize),
		workers:    workers,
		workerFunc: workerFunc,
		panicFunc:  panicFunc,
		shutdown:   make(chan struct{}),
		isRunning:  true,
	}

	for i := 0; i < workers; i++ {
		queue.wg.Add(1)
		go queue.worker(i)
	}

	return queue
}

func (pq *ProcessingQueue) worker(id int) {
	defer pq.wg.Done()

	for {
		select {
		case item := <-pq.items:
			if item == nil {
				continue
			}
			metrics.QueueDepth.Set(float64(len(pq.items)))
			pq.run(item)
		case <-pq.shutdown:
			return
		}
	}
}

func (pq *ProcessingQueue) run(item *QueueItem) {
	defer func() {
		if r := recover(); r != nil && pq.panicFunc != nil {
			pq.panicFunc(item, r)
		}
	}()

	pq.workerFunc(item)
}

// Enqueue adds item without blocking. It returns false when the queue is full or shut
// down.
func (pq *ProcessingQueue) Enqueue(item *QueueItem) bool {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()

	if !pq.isRunning {
		return false
	}

	select {
	case pq.items <- item:
		metrics.QueueDepth.Set(float64(len(pq.items)))
		return true
	default:
		return false
	}
}

func (pq *ProcessingQueue) Size() int {
	return len(pq.items)
}

func (pq *ProcessingQueue) Capacity() int {
	return cap(pq.items)
}

func (pq *ProcessingQueue) IsRunning() bool {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()
	return pq.isRunning
}

func (pq *ProcessingQueue) Workers() int {
	return pq.workers
}

// Shutdown stops accepting items and waits for running workers. Items still queued
// are returned so the caller can fail them.
func (pq *ProcessingQueue) Shutdown(timeout time.Duration) ([]*QueueItem, error) {
	pq.mutex.Lock()
	if !pq.isRunning {
		pq.mutex.Unlock()
		return nil, nil
	}
	pq.isRunning = false
	pq.mutex.Unlock()

	close(pq.shutdown)

	done := make(chan struct{})
	go func() {
		pq.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	pending := pq.drain()
	metrics.QueueDepth.Set(0)
	return pending, err
}

func (pq *ProcessingQueue) drain() []*QueueItem {
	var drained []*QueueItem
	for {
		select {
		case item := <-pq.items:
			if item != nil {
				drained = append(drained, item)
			}
		default:
			return drained
		}
	}
}

func (pq *ProcessingQueue) GetQueueStats() QueueStats {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()

	return QueueStats{
		CurrentSize:        pq.Size(),
		MaxCapacity:        pq.Capacity(),
		ActiveWorkers:      pq.workers,
		IsRunning:          pq.isRunning,
		UtilizationPercent: float64(pq.Size()) / float64(max(pq.Capacity(), 1)) * 100,
	}
}

type QueueStats struct {
	CurrentSize        int     `json:"current_size"`
	MaxCapacity        int     `json:"max_capacity"`
	ActiveWorkers      int     `json:"active_workers"`
	IsRunning          bool    `json:"is_running"`
	UtilizationPercent float64 `json:"utilization_percent"`
}
