package monitoring

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/desim/sim"
)

type sampleObject struct {
	Served  int
	Reneged int
	Name    string
}

func get(server *httptest.Server, path string) (int, string) {
	rsp, err := http.Get(server.URL + path)
	Expect(err).ToNot(HaveOccurred())
	defer rsp.Body.Close()

	body, err := io.ReadAll(rsp.Body)
	Expect(err).ToNot(HaveOccurred())

	return rsp.StatusCode, string(body)
}

var _ = Describe("Monitor", func() {
	var (
		m         *Monitor
		scheduler *sim.EventScheduler
		server    *httptest.Server
	)

	BeforeEach(func() {
		m = NewMonitor()
		m.inspectTimeout = 10 * time.Millisecond
		m.streamInterval = 5 * time.Millisecond

		scheduler = sim.NewEventScheduler()
		m.RegisterScheduler(scheduler)

		server = httptest.NewServer(m.Handler())
	})

	AfterEach(func() {
		m.Continue()
		server.Close()
	})

	scheduleThree := func() *sim.Event {
		var second *sim.Event

		for i := 1; i <= 3; i++ {
			e, err := scheduler.Timeout(sim.VTime(i), nil, nil)
			Expect(err).ToNot(HaveOccurred())

			if i == 2 {
				second = e
			}
		}

		return second
	}

	It("should reject port numbers below 1000", func() {
		m.WithPortNumber(80)
		Expect(m.portNumber).To(Equal(0))

		m.WithPortNumber(8080)
		Expect(m.portNumber).To(Equal(8080))
	})

	It("should track the scheduler", func() {
		second := scheduleThree()
		second.Deactivate()

		_, err := scheduler.Run(nil)
		Expect(err).ToNot(HaveOccurred())

		status := m.Status()
		Expect(status.Now).To(Equal(3.0))
		Expect(status.Queued).To(Equal(0))
		Expect(status.Scheduled).To(Equal(uint64(3)))
		Expect(status.Executed).To(Equal(uint64(2)))
		Expect(status.Discarded).To(Equal(uint64(1)))
		Expect(status.Failed).To(Equal(uint64(0)))
		Expect(status.LastEventTime).To(Equal(3.0))
	})

	It("should count failed actions", func() {
		_, err := scheduler.Timeout(1, sim.ActionFunc(func() error {
			return io.EOF
		}), nil)
		Expect(err).ToNot(HaveOccurred())

		_, err = scheduler.Run(nil)
		Expect(err).To(HaveOccurred())

		Expect(m.Status().Failed).To(Equal(uint64(1)))
	})

	It("should serve the clock and the status", func() {
		scheduleThree()
		_, err := scheduler.RunUntilMaxTime(2)
		Expect(err).ToNot(HaveOccurred())

		code, body := get(server, "/api/now")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(Equal(`{"now":2.0000000000}`))

		code, body = get(server, "/api/status")
		Expect(code).To(Equal(http.StatusOK))

		status := Status{}
		Expect(json.Unmarshal([]byte(body), &status)).To(Succeed())
		Expect(status).To(Equal(m.Status()))
		Expect(status.Queued).To(Equal(1))
	})

	It("should pause and continue the scheduler", func() {
		scheduleThree()

		_, _ = get(server, "/api/pause")
		Expect(m.Status().Paused).To(BeTrue())

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = scheduler.Run(nil)
		}()

		Eventually(func() uint64 { return m.Status().LastEventID }).
			Should(Equal(uint64(1)))
		Consistently(done, 50*time.Millisecond).ShouldNot(BeClosed())
		Expect(m.Status().Executed).To(Equal(uint64(0)))

		_, _ = get(server, "/api/continue")

		Eventually(done).Should(BeClosed())
		Expect(m.Status().Executed).To(Equal(uint64(3)))
		Expect(m.Status().Paused).To(BeFalse())
	})

	It("should inspect registered objects", func() {
		m.RegisterObject("bank", &sampleObject{Served: 3, Name: "main"})

		code, body := get(server, "/api/objects")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(Equal(`["bank"]`))

		code, body = get(server, "/api/object/bank")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).ToNot(BeEmpty())

		code, _ = get(server, "/api/object/teller")
		Expect(code).To(Equal(http.StatusNotFound))
	})

	It("should inspect objects while paused", func() {
		m.RegisterObject("bank", &sampleObject{Served: 3})
		scheduleThree()
		m.Pause()

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = scheduler.Run(nil)
		}()

		Eventually(func() uint64 { return m.Status().LastEventID }).
			Should(Equal(uint64(1)))

		code, _ := get(server, "/api/object/bank")
		Expect(code).To(Equal(http.StatusOK))

		m.Continue()
		Eventually(done).Should(BeClosed())
	})

	It("should panic when an object is registered twice", func() {
		m.RegisterObject("bank", &sampleObject{})
		Expect(func() { m.RegisterObject("bank", &sampleObject{}) }).To(Panic())
	})

	It("should export metrics", func() {
		scheduleThree()
		_, err := scheduler.Run(nil)
		Expect(err).ToNot(HaveOccurred())

		code, body := get(server, "/metrics")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring("desim_events_executed_total 3"))
		Expect(body).To(ContainSubstring("desim_events_scheduled_total 3"))
		Expect(body).To(ContainSubstring("desim_clock 3"))
	})

	It("should serve resources", func() {
		code, body := get(server, "/api/resource")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring("memory_size"))
	})

	It("should list progress bars", func() {
		bar := m.CreateProgressBar("customers", 10)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)

		Expect(bar.Finished).To(Equal(uint64(2)))
		Expect(bar.InProgress).To(Equal(uint64(1)))

		_, body := get(server, "/api/progress")
		Expect(body).To(ContainSubstring(`"name":"customers"`))

		m.CompleteProgressBar(bar)

		_, body = get(server, "/api/progress")
		Expect(body).To(Equal("[]"))
	})

	It("should stream the status over a websocket", func() {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/clock"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		status := Status{}
		Expect(conn.ReadJSON(&status)).To(Succeed())
		Expect(status.Now).To(Equal(0.0))

		scheduleThree()
		_, err = scheduler.Run(nil)
		Expect(err).ToNot(HaveOccurred())

		Eventually(func() float64 {
			Expect(conn.ReadJSON(&status)).To(Succeed())
			return status.Now
		}).Should(Equal(3.0))
	})

	It("should not have a URL before the server starts", func() {
		Expect(m.URL()).To(BeEmpty())
		Expect(m.OpenInBrowser()).ToNot(Succeed())
	})

	It("should serve the dashboard", func() {
		code, body := get(server, "/")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(HavePrefix("<!DOCTYPE html>"))
	})
})
