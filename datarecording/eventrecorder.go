package datarecording

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sarchlab/desim/idgen"
	"github.com/sarchlab/desim/sim"
)

// DefaultEventTable is the table the EventRecorder writes into unless told
// otherwise.
const DefaultEventTable = "event_log"

// The statuses stored in EventRecord.Status.
const (
	StatusExecuted    = "executed"
	StatusFailed      = "failed"
	StatusDeactivated = "deactivated"
)

// EventRecord is the row stored for every event a scheduler processes.
type EventRecord struct {
	Seq     uint64
	EventID uint64
	Time    float64
	Now     float64
	Status  string
	Context string
}

// EventRecorder is a hook that stores processed events with a DataRecorder.
type EventRecorder struct {
	recorder  DataRecorder
	tableName string
	seq       uint64

	// RecordDeactivated also stores events that are dropped.
	RecordDeactivated bool
}

// NewEventRecorder creates the event table and returns a hook that fills it.
func NewEventRecorder(recorder DataRecorder, tableName string) *EventRecorder {
	if tableName == "" {
		tableName = DefaultEventTable
	}

	recorder.CreateTable(tableName, EventRecord{})

	return &EventRecorder{
		recorder:  recorder,
		tableName: tableName,
	}
}

// TableName returns the name of the table the recorder writes into.
func (r *EventRecorder) TableName() string {
	return r.tableName
}

// Func records events after they run or when they are dropped.
func (r *EventRecorder) Func(ctx sim.HookCtx) {
	evt, ok := ctx.Item.(*sim.Event)
	if !ok {
		return
	}

	status := ""

	switch ctx.Pos {
	case sim.HookPosAfterEvent:
		status = StatusExecuted
		if err, ok := ctx.Detail.(error); ok && err != nil {
			status = StatusFailed
		}
	case sim.HookPosEventDiscarded:
		if !r.RecordDeactivated {
			return
		}

		status = StatusDeactivated
	default:
		return
	}

	now := evt.Time()
	if tt, ok := ctx.Domain.(sim.TimeTeller); ok {
		now = tt.CurrentTime()
	}

	r.seq++
	r.recorder.InsertData(r.tableName, EventRecord{
		Seq:     r.seq,
		EventID: uint64(evt.ID()),
		Time:    float64(evt.Time()),
		Now:     float64(now),
		Status:  status,
		Context: encodeContext(evt.Context()),
	})
}

func encodeContext(c sim.Context) string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf(`{"unencodable":%q}`, fmt.Sprint(c))
	}

	return string(b)
}

// ReadEventLog loads a recorded event table back as log entries, in the
// order the events were processed.
func ReadEventLog(
	ctx context.Context,
	reader DataReader,
	tableName string,
) ([]sim.LogEntry, error) {
	if tableName == "" {
		tableName = DefaultEventTable
	}

	reader.MapTable(tableName, EventRecord{})

	rows, _, err := reader.Query(ctx, tableName, QueryParams{OrderBy: "Seq ASC"})
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}

	log := make([]sim.LogEntry, 0, len(rows))

	for _, row := range rows {
		rec := row.(*EventRecord)

		entryCtx := sim.Context{}
		if err := json.Unmarshal([]byte(rec.Context), &entryCtx); err != nil {
			return nil, fmt.Errorf("decode context of event %d: %w",
				rec.EventID, err)
		}

		log = append(log, sim.LogEntry{
			EventID:     idgen.ID(rec.EventID),
			Time:        sim.VTime(rec.Time),
			Now:         sim.VTime(rec.Now),
			Context:     entryCtx,
			Deactivated: rec.Status == StatusDeactivated,
		})
	}

	return log, nil
}
