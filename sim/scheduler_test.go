package sim

import (
	"math"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/desim/idgen"
)

var _ = ginkgo.Describe("EventScheduler", func() {
	var (
		mockCtrl  *gomock.Controller
		scheduler *EventScheduler
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		scheduler = NewEventScheduler()
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	byTime := func(t VTime) Condition {
		return func(_ *EventScheduler, e *Event) bool {
			return e.Time() == t
		}
	}

	ginkgo.It("should start at time zero", func() {
		Expect(scheduler.CurrentTime()).To(Equal(VTime(0)))
		Expect(scheduler.Status()).To(Equal(SchedulerInactive))
		Expect(scheduler.LastStopReason()).To(Equal(StopNone))
		Expect(scheduler.Len()).To(Equal(0))
	})

	ginkgo.It("should start at the configured time", func() {
		scheduler = NewEventScheduler(WithStartTime(-3))

		Expect(scheduler.CurrentTime()).To(Equal(VTime(-3)))
	})

	ginkgo.It("should refuse a non-finite start time", func() {
		Expect(func() { WithStartTime(VTime(math.Inf(1))) }).To(Panic())
	})

	ginkgo.It("should number events with the configured generator", func() {
		scheduler = NewEventScheduler(
			WithIDGenerator(idgen.NewStartingAt(100)))
		evt := MustNewEvent(1, nil, nil)

		Expect(scheduler.Schedule(evt)).To(Succeed())
		Expect(evt.ID()).To(Equal(idgen.ID(100)))
	})

	ginkgo.Context("when scheduling", func() {
		ginkgo.It("should give increasing sequence numbers", func() {
			e1 := MustNewEvent(3, nil, nil)
			e2 := MustNewEvent(1, nil, nil)

			Expect(scheduler.Schedule(e1)).To(Succeed())
			Expect(scheduler.Schedule(e2)).To(Succeed())

			Expect(e1.ID()).To(Equal(idgen.ID(1)))
			Expect(e2.ID()).To(Equal(idgen.ID(2)))
			Expect(scheduler.Len()).To(Equal(2))
		})

		ginkgo.It("should reject a nil event", func() {
			Expect(scheduler.Schedule(nil)).To(MatchError(ErrEventNotSchedulable))
		})

		ginkgo.It("should reject an event scheduled twice", func() {
			evt := MustNewEvent(1, nil, nil)
			Expect(scheduler.Schedule(evt)).To(Succeed())

			Expect(scheduler.Schedule(evt)).To(MatchError(ErrEventNotSchedulable))
			Expect(scheduler.Len()).To(Equal(1))
		})

		ginkgo.It("should reject an event that is no longer pending", func() {
			evt := MustNewEvent(1, nil, nil)
			evt.Deactivate()

			Expect(scheduler.Schedule(evt)).To(MatchError(ErrEventNotSchedulable))
		})

		ginkgo.It("should accept an event in the past", func() {
			_, err := scheduler.Timeout(5, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = scheduler.Step()
			Expect(err).NotTo(HaveOccurred())

			Expect(scheduler.Schedule(MustNewEvent(1, nil, nil))).To(Succeed())
		})
	})

	ginkgo.Context("when using timeouts", func() {
		ginkgo.It("should schedule relative to the current time", func() {
			var scheduled *Event

			_, err := scheduler.Timeout(3, ActionFunc(func() error {
				var err error
				scheduled, err = scheduler.Timeout(5, nil, Context{"k": "v"})
				return err
			}), nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = scheduler.Timeout(4, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = scheduler.Step()
			Expect(err).NotTo(HaveOccurred())

			Expect(scheduler.CurrentTime()).To(Equal(VTime(3)))
			Expect(scheduled.Time()).To(Equal(VTime(8)))
			Expect(scheduled.Context()).To(HaveKeyWithValue("k", "v"))
		})

		ginkgo.It("should accept zero and negative delays", func() {
			zero, err := scheduler.Timeout(0, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			negative, err := scheduler.Timeout(-2, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(zero.Time()).To(Equal(VTime(0)))
			Expect(negative.Time()).To(Equal(VTime(-2)))
		})

		ginkgo.It("should reject a non-finite delay", func() {
			evt, err := scheduler.Timeout(VTime(math.NaN()), nil, nil)

			Expect(evt).To(BeNil())
			Expect(err).To(MatchError(ErrInvalidTime))
			Expect(scheduler.Len()).To(Equal(0))
		})
	})

	ginkgo.Context("when peeking", func() {
		var e0, e1, e2 *Event

		ginkgo.BeforeEach(func() {
			e0 = MustNewEvent(-1, nil, nil)
			e1 = MustNewEvent(0, nil, nil)
			e2 = MustNewEvent(1, nil, nil)

			Expect(scheduler.Schedule(e2)).To(Succeed())
			Expect(scheduler.Schedule(e0)).To(Succeed())
			Expect(scheduler.Schedule(e1)).To(Succeed())
		})

		ginkgo.It("should return infinity for an empty queue", func() {
			Expect(NewEventScheduler().Peek()).To(Equal(VTime(math.Inf(1))))
			Expect(NewEventScheduler().NextEvent()).To(BeNil())
		})

		ginkgo.It("should return the earliest event", func() {
			Expect(scheduler.Peek()).To(Equal(VTime(-1)))
			Expect(scheduler.NextEvent()).To(BeIdenticalTo(e0))
		})

		ginkgo.It("should not skip deactivated events", func() {
			e0.Deactivate()

			Expect(scheduler.Peek()).To(Equal(VTime(-1)))
		})

		ginkgo.DescribeTable("should find the first match in firing order",
			func(cond Condition, want VTime, found bool) {
				got, ok := scheduler.PeekByCondition(cond)

				Expect(ok).To(Equal(found))
				if found {
					Expect(got).To(Equal(want))
				}
			},
			ginkgo.Entry("t < -1", Condition(func(_ *EventScheduler, e *Event) bool {
				return e.Time() < -1
			}), VTime(0), false),
			ginkgo.Entry("t >= -1", Condition(func(_ *EventScheduler, e *Event) bool {
				return e.Time() >= -1
			}), VTime(-1), true),
			ginkgo.Entry("t > -1", Condition(func(_ *EventScheduler, e *Event) bool {
				return e.Time() > -1
			}), VTime(0), true),
			ginkgo.Entry("t > 0", Condition(func(_ *EventScheduler, e *Event) bool {
				return e.Time() > 0
			}), VTime(1), true),
			ginkgo.Entry("t > 1", Condition(func(_ *EventScheduler, e *Event) bool {
				return e.Time() > 1
			}), VTime(0), false),
		)

		ginkgo.It("should only consider pending events", func() {
			e0.Deactivate()

			Expect(scheduler.NextEventByCondition(byTime(-1))).To(BeNil())
			Expect(scheduler.NextEventByCondition(
				func(*EventScheduler, *Event) bool { return true },
			)).To(BeIdenticalTo(e1))
		})

		ginkgo.It("should pass itself to the condition", func() {
			var seen *EventScheduler

			scheduler.NextEventByCondition(func(s *EventScheduler, _ *Event) bool {
				seen = s
				return true
			})

			Expect(seen).To(BeIdenticalTo(scheduler))
		})
	})

	ginkgo.Context("when deactivating", func() {
		var a, b, c *Event

		ginkgo.BeforeEach(func() {
			a = MustNewEvent(2, nil, Context{"customer": 1})
			b = MustNewEvent(2, nil, Context{"customer": 2})
			c = MustNewEvent(1, nil, Context{"customer": 2})

			Expect(scheduler.Schedule(a)).To(Succeed())
			Expect(scheduler.Schedule(b)).To(Succeed())
			Expect(scheduler.Schedule(c)).To(Succeed())
		})

		customer := func(id int) Condition {
			return func(_ *EventScheduler, e *Event) bool {
				return e.Context()["customer"] == id
			}
		}

		ginkgo.It("should deactivate only the first match", func() {
			scheduler.DeactivateNextEventByCondition(customer(2))

			Expect(c.Deactivated()).To(BeTrue())
			Expect(b.IsPending()).To(BeTrue())
			Expect(a.IsPending()).To(BeTrue())
			Expect(scheduler.Len()).To(Equal(3))
			Expect(scheduler.NumPending()).To(Equal(2))
		})

		ginkgo.It("should move on to the next match when called again", func() {
			scheduler.DeactivateNextEventByCondition(customer(2))
			scheduler.DeactivateNextEventByCondition(customer(2))

			Expect(c.Deactivated()).To(BeTrue())
			Expect(b.Deactivated()).To(BeTrue())
			Expect(a.IsPending()).To(BeTrue())
		})

		ginkgo.It("should break ties by insertion order", func() {
			scheduler.DeactivateNextEventByCondition(byTime(2))

			Expect(a.Deactivated()).To(BeTrue())
			Expect(b.IsPending()).To(BeTrue())
		})

		ginkgo.It("should do nothing when nothing matches", func() {
			scheduler.DeactivateNextEventByCondition(customer(3))

			Expect(scheduler.NumPending()).To(Equal(3))
		})

		ginkgo.It("should deactivate the earliest pending event", func() {
			scheduler.DeactivateNextEvent()
			scheduler.DeactivateNextEvent()

			Expect(c.Deactivated()).To(BeTrue())
			Expect(a.Deactivated()).To(BeTrue())
			Expect(b.IsPending()).To(BeTrue())
		})

		ginkgo.It("should deactivate all matching events", func() {
			scheduler.DeactivateAllEventsByCondition(customer(2))

			Expect(b.Deactivated()).To(BeTrue())
			Expect(c.Deactivated()).To(BeTrue())
			Expect(a.IsPending()).To(BeTrue())
		})

		ginkgo.It("should deactivate every event", func() {
			scheduler.DeactivateAllEvents()

			Expect(scheduler.NumPending()).To(Equal(0))
			Expect(scheduler.Len()).To(Equal(3))
		})
	})

	ginkgo.It("should name its statuses", func() {
		Expect(SchedulerInactive.String()).To(Equal("inactive"))
		Expect(SchedulerActive.String()).To(Equal("active"))
		Expect(StopDrained.String()).To(Equal("drained"))
		Expect(StopByCondition.String()).To(Equal("stopped-by-condition"))
	})
})
