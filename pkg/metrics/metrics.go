/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes scheduler counters in the Prometheus format.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "samtgt"

// Collector holds the scheduler metrics. Every series is labelled with the
// scheduling domain: a LUN or "target" for the target-scope task set.
type Collector struct {
	gatherer prometheus.Gatherer

	tasksOffered   *prometheus.CounterVec
	tasksRejected  *prometheus.CounterVec
	tasksFinished  *prometheus.CounterVec
	tasksQueued    *prometheus.GaugeVec
	tmfExecuted    *prometheus.CounterVec
	loopFailures   *prometheus.CounterVec
	transferStages *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses a private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		gatherer: reg,
		tasksOffered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_offered_total",
			Help:      "Tasks admitted into a task set",
		}, []string{"domain", "attribute"}),
		tasksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_rejected_total",
			Help:      "Commands refused before reaching a task set",
		}, []string{"domain", "reason"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a final state",
		}, []string{"domain", "state"}),
		tasksQueued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_set",
			Help:      "Tasks currently held by a task set, queued or running",
		}, []string{"domain"}),
		tmfExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_management_total",
			Help:      "Task management functions executed",
		}, []string{"function", "response"}),
		loopFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manager_loop_failures_total",
			Help:      "Task manager driving loops stopped by an error",
		}, []string{"domain"}),
		transferStages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_stages_total",
			Help:      "Paced transfer stages issued",
		}, []string{"direction"}),
	}
	reg.MustRegister(
		c.tasksOffered,
		c.tasksRejected,
		c.tasksFinished,
		c.tasksQueued,
		c.tmfExecuted,
		c.loopFailures,
		c.transferStages,
	)
	return c
}

func (c *Collector) TaskOffered(domain, attribute string) {
	if c == nil {
		return
	}
	c.tasksOffered.WithLabelValues(domain, attribute).Inc()
}

func (c *Collector) TaskRejected(domain, reason string) {
	if c == nil {
		return
	}
	c.tasksRejected.WithLabelValues(domain, reason).Inc()
}

func (c *Collector) TaskFinished(domain, state string) {
	if c == nil {
		return
	}
	c.tasksFinished.WithLabelValues(domain, state).Inc()
}

func (c *Collector) SetTasksInSet(domain string, n int) {
	if c == nil {
		return
	}
	c.tasksQueued.WithLabelValues(domain).Set(float64(n))
}

func (c *Collector) TaskManagement(function, response string) {
	if c == nil {
		return
	}
	c.tmfExecuted.WithLabelValues(function, response).Inc()
}

func (c *Collector) LoopFailure(domain string) {
	if c == nil {
		return
	}
	c.loopFailures.WithLabelValues(domain).Inc()
}

func (c *Collector) TransferStage(direction string) {
	if c == nil {
		return
	}
	c.transferStages.WithLabelValues(direction).Inc()
}

// Handler serves the registered metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
