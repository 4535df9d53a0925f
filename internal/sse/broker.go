// Package sse streams pipeline and note-change events to HTTP clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Event types emitted by the pipeline and the index watcher.
const (
	TypeMemoAppended    = "memo.appended"
	TypeRollupCompleted = "rollup.completed"
	TypeNoteCreated     = "note.created"
	TypeNoteUpdated     = "note.updated"
	TypeNoteDeleted     = "note.deleted"
	TypeTagsUpdated     = "tags.updated"
)

const keepAliveInterval = 25 * time.Second

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Publisher is the write side of the broker used by pipeline components.
type Publisher interface {
	Publish(event Event)
}

// NoteEventData is the payload of note.* events.
type NoteEventData struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

type noteEventReq struct {
	op   string
	data NoteEventData
}

// client is one subscriber. An empty types set receives every event.
type client struct {
	ch    chan []byte
	types map[string]bool
}

func (c *client) wants(eventType string) bool {
	return len(c.types) == 0 || c.types[eventType]
}

// Broker fans events out to SSE subscribers.
//
// A single event loop goroutine owns the client set, the event sequence and
// the tags.updated coalescing state. Public methods talk to it over channels.
type Broker struct {
	tagsWindow time.Duration

	subscribeCh   chan *client
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	noteEventCh   chan noteEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits tags.updated at most once per
// tagsWindow. Note changes inside a window are folded into one trailing
// tags.updated at the end of it.
func NewBroker(tagsWindow time.Duration) *Broker {
	if tagsWindow <= 0 {
		tagsWindow = 2 * time.Second
	}

	b := &Broker{
		tagsWindow:    tagsWindow,
		subscribeCh:   make(chan *client),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		noteEventCh:   make(chan noteEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]*client)
	var seq uint64

	// Tags coalescing: lastTags is when tags.updated was last sent; pending
	// means a change arrived since and tagsTimer will flush it.
	var lastTags time.Time
	var pending bool
	var tagsTimer *time.Timer
	var tagsC <-chan time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		for _, c := range clients {
			if !c.wants(event.Type) {
				continue
			}
			select {
			case c.ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	tagsChanged := func() {
		now := time.Now()
		if now.Sub(lastTags) >= b.tagsWindow {
			lastTags = now
			broadcast(Event{Type: TypeTagsUpdated, Data: map[string]string{}})
			return
		}
		if pending {
			return
		}
		pending = true
		wait := b.tagsWindow - now.Sub(lastTags)
		if tagsTimer == nil {
			tagsTimer = time.NewTimer(wait)
		} else {
			tagsTimer.Reset(wait)
		}
		tagsC = tagsTimer.C
	}

	for {
		select {
		case <-b.stopCh:
			if tagsTimer != nil {
				tagsTimer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case c := <-b.subscribeCh:
			clients[c.ch] = c

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)
			if event.Type == TypeRollupCompleted {
				tagsChanged()
			}

		case req := <-b.noteEventCh:
			switch req.op {
			case "created":
				broadcast(Event{Type: TypeNoteCreated, Data: req.data})
			case "updated":
				broadcast(Event{Type: TypeNoteUpdated, Data: req.data})
			case "deleted":
				broadcast(Event{Type: TypeNoteDeleted, Data: req.data})
			default:
				continue
			}
			tagsChanged()

		case <-tagsC:
			tagsC = nil
			pending = false
			lastTags = time.Now()
			broadcast(Event{Type: TypeTagsUpdated, Data: map[string]string{}})

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. With no types the
// client receives every event.
func (b *Broker) Subscribe(types ...string) chan []byte {
	c := &client{ch: make(chan []byte, 64)}
	if len(types) > 0 {
		c.types = make(map[string]bool, len(types))
		for _, t := range types {
			c.types[t] = true
		}
	}
	if b.closed.Load() {
		close(c.ch)
		return c.ch
	}

	select {
	case b.subscribeCh <- c:
	case <-b.stopped:
		close(c.ch)
	}

	return c.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent publishes a note change (op is "created", "updated" or
// "deleted") for a note of the given kind.
func (b *Broker) PublishNoteEvent(op, path, kind string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noteEventCh <- noteEventReq{op: op, data: NoteEventData{Path: path, Kind: kind}}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// "types" query parameter is a comma-separated event type filter.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var types []string
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(types...)
	defer b.Unsubscribe(ch)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
