package pipeline

import (
	"time"

	"github.com/giftwise/giftwise-cli/internal/model"
)

// emitter delivers progress events to the single subscriber of one run.
// A nil sink drops everything; the run proceeds either way.
type emitter struct {
	sink model.EventSink
}

func newEmitter(sink model.EventSink) *emitter {
	return &emitter{sink: sink}
}

func (e *emitter) emit(ev model.Event) {
	if e.sink == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	e.sink(ev)
}

func (e *emitter) stageStatus(stage model.StageID, status model.StageStatus) {
	e.emit(model.Event{
		Type:   model.EventTypeStatus,
		Stage:  stage,
		Status: status,
	})
}

func (e *emitter) stageOutput(stage model.StageID, data map[string]any) {
	e.emit(model.Event{
		Type:  model.EventTypeOutput,
		Stage: stage,
		Data:  data,
	})
}

func (e *emitter) failure(errMsg string) {
	e.emit(model.Event{
		Type:  model.EventTypeError,
		Error: errMsg,
	})
}

func (e *emitter) complete(data map[string]any) {
	e.emit(model.Event{
		Type: model.EventTypeComplete,
		Data: data,
	})
}
