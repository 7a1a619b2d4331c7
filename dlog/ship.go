package dlog

import (
	"context"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
)

// Shipping of events to a remote log server. Disabled unless Server is set.
var (
	// Server is the host:port of the log server, e.g. "logs.example.com".
	Server = ""
	// ApiKey is sent as the X-Api-Key header if set.
	ApiKey = ""
)

// how long to wait before we resume sending to the server after a failure.
// doesn't affect logging to files
const throttleTimeout = time.Second * 15

var (
	throttleUntil time.Time
	ch            = make(chan []byte, 1000)
	done          = make(chan struct{})
	startWorker   sync.Once
	stopWorker    sync.Once
)

func shipWorker() {
	for {
		var d []byte
		select {
		case <-done:
			return
		case d = <-ch:
		}
		if time.Now().Before(throttleUntil) {
			continue
		}
		uri := "https://" + Server + "/api/v1/event"
		r := requests.
			URL(uri).
			BodyBytes(d).
			ContentType("text/plain")
		if ApiKey != "" {
			r = r.Header("X-Api-Key", ApiKey)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		err := r.Fetch(ctx)
		cancel()
		if err != nil {
			// don't hammer a server that's down
			throttleUntil = time.Now().Add(throttleTimeout)
		}
	}
}

// shipEvent queues an event record for delivery to Server. Never blocks:
// if the queue is full the event is dropped (files still have it).
func shipEvent(d []byte) {
	if Server == "" {
		return
	}
	startWorker.Do(func() {
		go shipWorker()
	})
	select {
	case ch <- d:
	default:
	}
}

// stopShipping tells the worker to exit even if the queue is full.
// Safe to call more than once; a late shipEvent after stop just queues
// records nobody drains.
func stopShipping() {
	stopWorker.Do(func() {
		close(done)
	})
}
