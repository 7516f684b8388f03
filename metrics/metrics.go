/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics exposes the server's counters and gauges through
// prometheus/client_golang, a direct dependency of the parent module.
// These counters are separate from the wire stats command, which reads
// lru.Store.Stats; the command package reports each executed command name
// here through the Recorder interface.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a Recorder (command.Recorder) and a periodic store/pool
// gauge sampler.
type Metrics struct {
	registry *prometheus.Registry

	cmdTotal     *prometheus.CounterVec
	items        prometheus.Gauge
	bytes        prometheus.Gauge
	evictions    prometheus.Counter
	poolWorkers  prometheus.Gauge
	poolQueueLen prometheus.Gauge
	connections  prometheus.Gauge
}

// New registers the server's metric families on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cmdTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memkv_cmd_total",
			Help: "Number of times each wire command was executed.",
		}, []string{"cmd"}),
		items: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memkv_items",
			Help: "Number of live keys in the store.",
		}),
		bytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memkv_bytes",
			Help: "Bytes currently held by the store.",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "memkv_evictions_total",
			Help: "Number of LRU tail evictions.",
		}),
		poolWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memkv_pool_workers",
			Help: "Current worker pool size (mt-nonblocking only).",
		}),
		poolQueueLen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memkv_pool_queue_len",
			Help: "Current worker pool queue length (mt-nonblocking only).",
		}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memkv_connections",
			Help: "Current number of open client connections.",
		}),
	}
}

// ObserveCommand implements command.Recorder.
func (m *Metrics) ObserveCommand(name string) {
	m.cmdTotal.WithLabelValues(name).Inc()
}

// StoreSample is whatever the store exposes for periodic gauge sampling.
type StoreSample struct {
	Items     int
	Bytes     int
	Evictions uint64
}

// PoolSample is whatever the worker pool exposes for periodic sampling.
type PoolSample struct {
	Workers   int
	QueueLen  int
}

// Sample updates the gauges from one snapshot of store/pool/connection
// state. The evictions counter only ever increases, so Sample adds the
// delta since the last observed total rather than setting it outright.
func (m *Metrics) Sample(store StoreSample, pool PoolSample, connections int, lastEvictions *uint64) {
	m.items.Set(float64(store.Items))
	m.bytes.Set(float64(store.Bytes))
	if store.Evictions > *lastEvictions {
		m.evictions.Add(float64(store.Evictions - *lastEvictions))
		*lastEvictions = store.Evictions
	}
	m.poolWorkers.Set(float64(pool.Workers))
	m.poolQueueLen.Set(float64(pool.QueueLen))
	m.connections.Set(float64(connections))
}

// Serve starts an HTTP server exposing /metrics on addr until ctx is
// cancelled. Intended to run in its own goroutine.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
