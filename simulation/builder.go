package simulation

import (
	"io"
	"log"

	"github.com/sarchlab/desim/datarecording"
	"github.com/sarchlab/desim/idgen"
	"github.com/sarchlab/desim/monitoring"
	"github.com/sarchlab/desim/sim"
)

// Builder can be used to build a simulation.
type Builder struct {
	startTime         sim.VTime
	monitorOn         bool
	monitorPort       int
	recordingOn       bool
	recordDeactivated bool
	outputFileName    string
	eventLogWriter    io.Writer
	eventLogKeys      []string
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		monitorOn:   true,
		recordingOn: true,
	}
}

// WithStartTime sets the initial value of the simulated clock.
func (b Builder) WithStartTime(t sim.VTime) Builder {
	b.startTime = t
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithoutRecording sets the simulation to not write a database.
func (b Builder) WithoutRecording() Builder {
	b.recordingOn = false
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithDeactivatedRecorded also records deactivated events in the database.
func (b Builder) WithDeactivatedRecorded() Builder {
	b.recordDeactivated = true
	return b
}

// WithEventLogger prints every processed event to w. Only the listed context
// keys are printed; all keys are printed if none is given.
func (b Builder) WithEventLogger(w io.Writer, keys ...string) Builder {
	b.eventLogWriter = w
	b.eventLogKeys = keys

	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.recordingOn && b.outputFileName != "" {
		panic("output file cannot be set when recording is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		id:          idgen.UniqueName(""),
		objectIndex: make(map[string]int),
	}

	s.scheduler = sim.NewEventScheduler(sim.WithStartTime(b.startTime))

	if b.recordingOn {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "desim_sim_" + s.id
		}

		s.dataRecorder = datarecording.New(outputPath)
		s.execRecorder = datarecording.NewExecRecorder(s.dataRecorder)
		s.execRecorder.Start()

		s.eventRecorder = datarecording.NewEventRecorder(s.dataRecorder, "")
		s.eventRecorder.RecordDeactivated = b.recordDeactivated
		s.scheduler.AcceptHook(s.eventRecorder)
	}

	if b.eventLogWriter != nil {
		logger := sim.NewEventLogger(log.New(b.eventLogWriter, "", 0))
		logger.Keys = b.eventLogKeys
		s.scheduler.AcceptHook(logger)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}

		s.monitor.RegisterScheduler(s.scheduler)
		s.monitor.StartServer()
	}

	return s
}
