package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/conneroisu/payload/internal/lifecycle"
	"github.com/conneroisu/payload/internal/registry"
)

// ObserverComponent is the name the inspector registers under.
const ObserverComponent = "inspector"

// KindComponent marks a registry change on the stream. It is not a
// lifecycle kind and never reaches the internal channel.
const KindComponent lifecycle.Kind = "component"

// Message is one lifecycle event or registry change as streamed to
// websocket clients.
type Message struct {
	Kind      lifecycle.Kind `json:"kind"`
	Component string         `json:"component,omitempty"`
	Change    string         `json:"change,omitempty"`
	Selector  string         `json:"selector,omitempty"`
	URL       string         `json:"url,omitempty"`
	Status    int            `json:"status,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Error     string         `json:"error,omitempty"`
	Time      time.Time      `json:"time"`
}

// Observer returns lifecycle handlers that turn every event into a Message
// and pass it to emit.
func Observer(emit func(Message), now func() time.Time) *lifecycle.Handlers {
	if now == nil {
		now = time.Now
	}
	fromExchange := func(kind lifecycle.Kind, ex *lifecycle.Exchange) Message {
		m := Message{Kind: kind, Time: now().UTC()}
		if ex != nil && ex.Descriptor != nil {
			m.Selector = ex.Descriptor.Selector
			m.URL = ex.Descriptor.URL
		}

		return m
	}

	return &lifecycle.Handlers{
		Init: func(_ context.Context, ev lifecycle.InitEvent) {
			emit(Message{Kind: lifecycle.KindInit, Component: ev.Component, Time: now().UTC()})
		},
		BeforeSend: func(_ context.Context, ev lifecycle.BeforeSendEvent) {
			emit(fromExchange(lifecycle.KindBeforeSend, ev.Exchange))
		},
		BeforeRender: func(_ context.Context, ev lifecycle.BeforeRenderEvent) {
			emit(fromExchange(lifecycle.KindBeforeRender, ev.Exchange))
		},
		AfterRender: func(_ context.Context, ev lifecycle.AfterRenderEvent) {
			emit(fromExchange(lifecycle.KindAfterRender, ev.Exchange))
		},
		Done: func(_ context.Context, ev lifecycle.DoneEvent) {
			m := fromExchange(lifecycle.KindDone, ev.Exchange)
			m.Status = ev.Status
			emit(m)
		},
		Fail: func(_ context.Context, ev lifecycle.FailEvent) {
			m := fromExchange(lifecycle.KindFail, ev.Exchange)
			m.Status = ev.Status
			m.Reason = string(ev.Reason)
			if ev.Err != nil {
				m.Error = ev.Err.Error()
			}
			emit(m)
		},
		Always: func(_ context.Context, ev lifecycle.AlwaysEvent) {
			m := fromExchange(lifecycle.KindAlways, ev.Exchange)
			m.Status = ev.Status
			if ev.Err != nil {
				m.Error = ev.Err.Error()
			}
			emit(m)
		},
	}
}

func componentMessage(ev registry.ComponentEvent) Message {
	m := Message{Kind: KindComponent, Change: ev.Type.String(), Time: ev.Timestamp.UTC()}
	if ev.Component != nil {
		m.Component = ev.Component.Name
	}

	return m
}

// broadcastMessage encodes m for the hub.
func (s *InspectorServer) broadcastMessage(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		s.logger.Warn(context.Background(), err, "failed to encode lifecycle message", "kind", m.Kind)
		return
	}
	s.hub.Broadcast(data)
}
