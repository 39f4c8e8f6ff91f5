// Package simulation wires an event scheduler together with the services
// that usually come with it: a database recording, a monitor, and an event
// logger.
package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/sarchlab/desim/datarecording"
	"github.com/sarchlab/desim/monitoring"
	"github.com/sarchlab/desim/sim"
)

// A Simulation provides the services required to run a model.
type Simulation struct {
	id        string
	scheduler *sim.EventScheduler

	dataRecorder  datarecording.DataRecorder
	execRecorder  *datarecording.ExecRecorder
	eventRecorder *datarecording.EventRecorder
	monitor       *monitoring.Monitor

	objects     []any
	objectNames []string
	objectIndex map[string]int
	terminated  bool
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Scheduler returns the scheduler that drives the simulation.
func (s *Simulation) Scheduler() *sim.EventScheduler {
	return s.scheduler
}

// GetDataRecorder returns the data recorder, or nil if recording is off.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetEventRecorder returns the hook that writes the event log, or nil if
// recording is off.
func (s *Simulation) GetEventRecorder() *datarecording.EventRecorder {
	return s.eventRecorder
}

// GetMonitor returns the monitor, or nil if monitoring is off.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// RegisterObject registers a model object so that it can be found by name
// and inspected from the monitor.
func (s *Simulation) RegisterObject(name string, obj any) {
	if _, found := s.objectIndex[name]; found {
		panic("object " + name + " already registered")
	}

	s.objects = append(s.objects, obj)
	s.objectNames = append(s.objectNames, name)
	s.objectIndex[name] = len(s.objects) - 1

	if s.monitor != nil {
		s.monitor.RegisterObject(name, obj)
	}
}

// GetObjectByName returns the object registered under the name, or nil.
func (s *Simulation) GetObjectByName(name string) any {
	i, found := s.objectIndex[name]
	if !found {
		return nil
	}

	return s.objects[i]
}

// Objects returns the names of all registered objects in registration order.
func (s *Simulation) Objects() []string {
	names := make([]string, len(s.objectNames))
	copy(names, s.objectNames)

	return names
}

// RecordProperty stores a property of the execution, such as a summary
// statistic, when the simulation terminates. It does nothing if recording is
// off.
func (s *Simulation) RecordProperty(property, value string) {
	if s.execRecorder == nil {
		return
	}

	s.execRecorder.Record(property, value)
}

// Terminate writes the remaining records, closes the database, and stops the
// monitoring server. It is safe to call more than once.
func (s *Simulation) Terminate() error {
	if s.terminated {
		return nil
	}

	s.terminated = true

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := s.monitor.StopServer(ctx); err != nil {
			return fmt.Errorf("stop monitor: %w", err)
		}
	}

	if s.dataRecorder == nil {
		return nil
	}

	s.execRecorder.Record("Final Time",
		fmt.Sprintf("%.10f", float64(s.scheduler.CurrentTime())))
	s.execRecorder.End()

	return s.dataRecorder.Close()
}
