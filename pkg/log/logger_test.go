package log

import "testing"

func TestNoopLoggerAcceptsAnyEvent(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
	logger.Log(Event{Frame: &FrameEvent{Size: 3, Data: []byte("{}\n")}})
	logger.Log(Event{Message: &MessageEvent{Type: MessageTypeNotification, Method: "notify_status_update"}})
	logger.Log(Event{StateChange: &StateChangeEvent{Entity: StateEntityKlippy, NewState: "ready"}})
	logger.Log(Event{ControlMsg: &ControlMsgEvent{Type: ControlMsgPing}})
	logger.Log(Event{Error: &ErrorEventData{Message: "read: connection reset"}})
}

func TestLoggerFunc(t *testing.T) {
	var got []string
	l := LoggerFunc(func(e Event) { got = append(got, e.ConnectionID) })
	l.Log(Event{ConnectionID: "a"})
	l.Log(Event{ConnectionID: "b"})
	if len(got) != 2 || got[1] != "b" {
		t.Errorf("got %v", got)
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) did not return NoopLogger")
	}
	m := NewMultiLogger()
	if OrNoop(m) != Logger(m) {
		t.Error("OrNoop(l) did not return l")
	}
}
