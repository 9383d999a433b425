package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go-report-checkout/form"

	sse "github.com/alexandrevicenzi/go-sse"
)

const eventsPathPrefix = "/events/forms/"

// EventBroadcaster streams view snapshots to the browser, one channel per form.
type EventBroadcaster struct {
	server *sse.Server
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		server: sse.NewServer(&sse.Options{
			Headers: map[string]string{
				"Cache-Control":     "no-cache",
				"X-Accel-Buffering": "no",
			},
			ChannelNameFunc: func(r *http.Request) string { return r.URL.Path },
			Logger:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
		}),
	}
}

func eventChannel(formId string) string {
	return eventsPathPrefix + formId
}

func (b *EventBroadcaster) Publish(formId string, view form.View) {
	payload, err := json.Marshal(view)
	if err != nil {
		slog.Error("failed to marshal view event", "form_id", formId, "error", err)
		return
	}
	b.server.SendMessage(eventChannel(formId), sse.NewMessage("", string(payload), "view"))
}

func (b *EventBroadcaster) Close(formId string) {
	if b.server.HasChannel(eventChannel(formId)) {
		b.server.CloseChannel(eventChannel(formId))
	}
}

func (b *EventBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.server.ServeHTTP(w, r)
}

// CloseAll disconnects every open stream so its handler returns. The
// dispatcher is left running: each stream reports its disconnect to it after
// the handler has exited.
func (b *EventBroadcaster) CloseAll() {
	for _, name := range b.server.Channels() {
		b.server.CloseChannel(name)
	}
}

// ClientCount is the number of connected streams.
func (b *EventBroadcaster) ClientCount() int {
	return b.server.ClientCount()
}
