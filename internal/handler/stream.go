package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/docsight/docsight/internal/liveview"
	"github.com/docsight/docsight/internal/port"
)

// heartbeatInterval keeps idle SSE connections from being reaped by proxies.
const heartbeatInterval = 15 * time.Second

// streamLiveQuery subscribes a live query and writes every snapshot to the
// client as a server-sent event. Snapshots are coalesced latest-wins: a slow
// client only ever misses intermediate states, never the current one. The
// stream ends when the client disconnects.
func streamLiveQuery(c fiber.Ctx, cache *liveview.Cache, desc liveview.Descriptor, decode func([]port.Document) any) error {
	// Capacity-1 channel plus drain-then-send gives latest-wins semantics.
	// Deliveries are serialized by the subscription, so there is exactly
	// one producer.
	snapshots := make(chan []port.Document, 1)
	unsubscribe, err := cache.Subscribe(desc, func(docs []port.Document) {
		select {
		case snapshots <- docs:
		default:
			select {
			case <-snapshots:
			default:
			}
			select {
			case snapshots <- docs:
			default:
			}
		}
	})
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "live query unavailable"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case docs := <-snapshots:
				payload, err := json.Marshal(decode(docs))
				if err != nil {
					return
				}
				fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload)
			case <-heartbeat.C:
				fmt.Fprint(w, ": heartbeat\n\n")
			}
			if err := w.Flush(); err != nil {
				// Client went away.
				return
			}
		}
	})
}
