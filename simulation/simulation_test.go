package simulation

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/desim/datarecording"
	"github.com/sarchlab/desim/sim"
)

type bank struct {
	Served int
}

var _ = Describe("Simulation", func() {
	var (
		dir        string
		simulation *Simulation
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "desim_simulation")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		if simulation != nil {
			Expect(simulation.Terminate()).To(Succeed())
			simulation = nil
		}

		os.RemoveAll(dir)
	})

	It("should register objects", func() {
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			Build()

		b := &bank{}
		simulation.RegisterObject("bank", b)

		Expect(simulation.GetObjectByName("bank")).To(BeIdenticalTo(b))
		Expect(simulation.GetObjectByName("teller")).To(BeNil())
		Expect(simulation.Objects()).To(Equal([]string{"bank"}))
		Expect(func() { simulation.RegisterObject("bank", b) }).To(Panic())
	})

	It("should start the clock at the given time", func() {
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			WithStartTime(10).
			Build()

		Expect(simulation.Scheduler().CurrentTime()).To(Equal(sim.VTime(10)))
		Expect(simulation.GetDataRecorder()).To(BeNil())
		Expect(simulation.GetMonitor()).To(BeNil())
		Expect(simulation.ID()).ToNot(BeEmpty())
	})

	It("should log events", func() {
		buf := bytes.NewBuffer(nil)
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithoutRecording().
			WithEventLogger(buf, "name").
			Build()

		_, err := simulation.Scheduler().Timeout(1, nil,
			sim.Context{"name": "arrival", "other": 1})
		Expect(err).ToNot(HaveOccurred())

		_, err = simulation.Scheduler().Run(nil)
		Expect(err).ToNot(HaveOccurred())

		Expect(buf.String()).To(ContainSubstring("name=arrival"))
		Expect(buf.String()).ToNot(ContainSubstring("other"))
	})

	It("should record the event log", func() {
		path := filepath.Join(dir, "run")
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithOutputFileName(path).
			WithDeactivatedRecorded().
			Build()

		scheduler := simulation.Scheduler()
		_, err := scheduler.Timeout(1, nil, sim.Context{"name": "a"})
		Expect(err).ToNot(HaveOccurred())
		dropped, err := scheduler.Timeout(2, nil, sim.Context{"name": "b"})
		Expect(err).ToNot(HaveOccurred())
		dropped.Deactivate()

		_, err = scheduler.Run(nil)
		Expect(err).ToNot(HaveOccurred())

		simulation.RecordProperty("Served", "1")
		Expect(simulation.Terminate()).To(Succeed())
		Expect(simulation.Terminate()).To(Succeed())
		simulation = nil

		reader, err := datarecording.NewReader(path + ".sqlite3")
		Expect(err).ToNot(HaveOccurred())
		defer reader.Close()

		log, err := datarecording.ReadEventLog(context.Background(), reader, "")
		Expect(err).ToNot(HaveOccurred())
		Expect(log).To(HaveLen(2))
		Expect(log[0].Context["name"]).To(Equal("a"))
		Expect(log[1].Deactivated).To(BeTrue())

		reader.MapTable(datarecording.ExecTable, datarecording.ExecInfo{})
		rows, _, err := reader.Query(context.Background(),
			datarecording.ExecTable,
			datarecording.QueryParams{Where: "Property = ?", Args: []any{"Served"}})
		Expect(err).ToNot(HaveOccurred())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].(*datarecording.ExecInfo).Value).To(Equal("1"))
	})

	It("should serve the scheduler from the monitor", func() {
		simulation = MakeBuilder().
			WithoutRecording().
			Build()

		Expect(simulation.GetMonitor()).ToNot(BeNil())
		Expect(simulation.GetMonitor().URL()).To(HavePrefix("http://localhost:"))

		simulation.RegisterObject("bank", &bank{})

		_, err := simulation.Scheduler().Timeout(4, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		_, err = simulation.Scheduler().Run(nil)
		Expect(err).ToNot(HaveOccurred())

		Expect(simulation.GetMonitor().Status().Now).To(Equal(4.0))
	})

	It("should reject inconsistent parameters", func() {
		Expect(func() {
			MakeBuilder().WithoutMonitoring().WithMonitorPort(8080).Build()
		}).To(Panic())

		Expect(func() {
			MakeBuilder().WithoutMonitoring().WithoutRecording().
				WithOutputFileName("x").Build()
		}).To(Panic())
	})
})
