// Copyright (C) 2024 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package boxxer

import (
	"runtime"
	"sync"

	"github.com/pbnjay/memory"
)

// MaxThreads caps the number of worker goroutines. Zero selects the cap
// automatically from GOMAXPROCS and physical memory.
var MaxThreads = 0

// poolSize returns the number of workers for a job whose per-worker
// state occupies perWorkerBytes. Keeps total worker state within 7/10
// of physical memory.
func poolSize(perWorkerBytes uint64) int {
	n := runtime.GOMAXPROCS(0)
	if MaxThreads > 0 && MaxThreads < n {
		n = MaxThreads
	}
	if perWorkerBytes > 0 {
		budget := memory.TotalMemory() * 7 / 10
		if m := budget / perWorkerBytes; m < uint64(n) {
			n = int(m)
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// parallelFrames runs nWorkers goroutines, each invoking worker with a
// shared channel of frame indices. The first worker error is returned
// after all workers have joined.
func parallelFrames(nFrames, nWorkers int, worker func(frames <-chan int) error) error {
	frames := make(chan int, nFrames)
	for i := 0; i < nFrames; i++ {
		frames <- i
	}
	close(frames)
	errCh := make(chan error, nWorkers)
	var wg sync.WaitGroup
	for w := 0; w < nWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker(frames); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}
