package adminapi

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/danmuck/vimctl/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func newTestClient(id string, buffer int) *client {
	return &client{id: id, send: make(chan []byte, buffer)}
}

func TestHubConcurrentRemoveAndBroadcast(t *testing.T) {
	testlog.Start(t)
	hub := NewHub(zerolog.Nop())

	const rounds = 500
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		c := newTestClient("c", clientBuffer)
		hub.register(c)

		wg.Add(3)
		go func() {
			defer wg.Done()
			for range c.send {
			}
		}()
		go func() {
			defer wg.Done()
			hub.Event("bufferchange", []string{"3", "/tmp/foo.txt"})
		}()
		go func() {
			defer wg.Done()
			hub.remove(c)
		}()
	}
	wg.Wait()
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("clients left: %d", n)
	}
}

func TestHubSnapshotAndSlowClient(t *testing.T) {
	testlog.Start(t)
	hub := NewHub(zerolog.Nop())
	hub.ServerListChanged([]string{"GVIM"})

	fast := newTestClient("fast", clientBuffer)
	slow := newTestClient("slow", 1)
	hub.register(fast)
	hub.register(slow)

	var first Message
	if err := json.Unmarshal(<-fast.send, &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Type != MsgServerList || len(first.Servers) != 1 || first.Servers[0] != "GVIM" {
		t.Fatalf("snapshot=%+v", first)
	}

	// slow still holds its snapshot, so the event overflows its buffer.
	hub.Event("ready", nil)
	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("slow client must be dropped, clients=%d", n)
	}
	<-slow.send
	if _, open := <-slow.send; open {
		t.Fatalf("dropped client channel must be closed")
	}
	hub.remove(slow)

	var ev Message
	if err := json.Unmarshal(<-fast.send, &ev); err != nil || ev.Type != MsgEvent || ev.Name != "ready" {
		t.Fatalf("event=%+v err=%v", ev, err)
	}
}
