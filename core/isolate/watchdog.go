package isolate

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const (
	// heapMetric is cheap to read but includes garbage not yet swept.
	heapMetric = "/memory/classes/heap/objects:bytes"
	// liveMetric is the heap retained by the last completed collection.
	liveMetric = "/gc/heap/live:bytes"

	watchdogPeriod = 5 * time.Millisecond
)

// watchdog fires once when the live heap grows past limit bytes above the
// level observed at start. The cheap metric only raises a suspicion; a
// breach is reported after a forced collection confirms it, so garbage the
// contract already dropped is never charged to it.
type watchdog struct {
	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func readMetric(name string) uint64 {
	sample := []metrics.Sample{{Name: name}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// liveHeap collects and returns the live heap size. After runtime.GC the
// sweep has finished, so the object metric is exact when the live metric
// is not available.
func liveHeap() uint64 {
	runtime.GC()
	if live := readMetric(liveMetric); live > 0 {
		return live
	}
	return readMetric(heapMetric)
}

func startWatchdog(limit uint64, breach func()) *watchdog {
	w := &watchdog{quit: make(chan struct{})}
	base := liveHeap()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(watchdogPeriod)
		defer ticker.Stop()
		// floor is the last confirmed live level. A collection is forced
		// only once limit bytes have been allocated on top of it.
		floor := base
		for {
			select {
			case <-w.quit:
				return
			case <-ticker.C:
				if used := readMetric(heapMetric); used <= floor || used-floor <= limit {
					continue
				}
				live := liveHeap()
				if live > base && live-base > limit {
					breach()
					return
				}
				floor = live
			}
		}
	}()
	return w
}

func (w *watchdog) stop() {
	w.once.Do(func() { close(w.quit) })
	w.wg.Wait()
}
