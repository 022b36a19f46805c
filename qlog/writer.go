package qlog

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/francoispqt/gojay"
)

const eventChanSize = 50

type writer struct {
	w io.WriteCloser

	referenceTime time.Time
	tr            *trace

	events     chan event
	encodeErr  error
	runStopped chan struct{}
}

func newWriter(w io.WriteCloser, tr *trace) *writer {
	return &writer{
		w:             w,
		tr:            tr,
		referenceTime: tr.CommonFields.ReferenceTime,
		runStopped:    make(chan struct{}),
		events:        make(chan event, eventChanSize),
	}
}

func (w *writer) RecordEvent(eventTime time.Time, details eventDetails) {
	w.events <- event{
		RelativeTime: eventTime.Sub(w.referenceTime),
		eventDetails: details,
	}
}

func (w *writer) writeRecord(buf *bytes.Buffer, v gojay.MarshalerJSONObject) error {
	buf.Reset()
	enc := gojay.NewEncoder(buf)
	if err := enc.EncodeObject(v); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := w.w.Write(buf.Bytes())
	return err
}

func (w *writer) Run() {
	defer close(w.runStopped)
	var buf bytes.Buffer
	if err := w.writeRecord(&buf, &topLevel{trace: *w.tr}); err != nil {
		panic(fmt.Sprintf("qlog encoding into a bytes.Buffer failed: %s", err))
	}
	for ev := range w.events {
		if w.encodeErr != nil { // if encoding failed, just continue draining the event channel
			continue
		}
		if err := w.writeRecord(&buf, ev); err != nil {
			w.encodeErr = err
		}
	}
}

func (w *writer) Close() error {
	close(w.events)
	<-w.runStopped
	if err := w.w.Close(); err != nil {
		return err
	}
	if w.encodeErr != nil {
		log.Printf("exporting qlog failed: %s\n", w.encodeErr)
		return w.encodeErr
	}
	return nil
}
