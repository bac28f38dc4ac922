package x11

import (
	"errors"
	"os"
	"testing"

	"github.com/danmuck/vimctl/internal/protocol"
	"github.com/danmuck/vimctl/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func TestDialUnknownDisplay(t *testing.T) {
	testlog.Start(t)
	if _, err := Dial(":4711", zerolog.Nop()); !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestSelfAdvertisesProtocol(t *testing.T) {
	testlog.Start(t)
	if os.Getenv("DISPLAY") == "" {
		t.Skip("no X display")
	}
	c, err := Dial("", zerolog.Nop())
	if err != nil {
		t.Skipf("display unavailable: %v", err)
	}
	defer c.Close()

	if _, ok := c.ResolveWindow(c.Self()); !ok {
		t.Fatalf("own window must resolve")
	}
	if err := c.Send(c.Self(), protocol.PropComm, []byte("a")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := c.Send(c.Self(), protocol.PropComm, []byte("b")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := c.ReadAndClear(c.Self(), protocol.PropComm)
	if err != nil || string(got) != "ab" {
		t.Fatalf("read=%q err=%v", got, err)
	}
	if again, _ := c.ReadAndClear(c.Self(), protocol.PropComm); len(again) != 0 {
		t.Fatalf("property not cleared: %q", again)
	}
	embed, err := c.EmbedTarget()
	if err != nil || embed == 0 {
		t.Fatalf("embed=%v err=%v", embed, err)
	}
	if again, _ := c.EmbedTarget(); again != embed {
		t.Fatalf("embed target must be reused")
	}
}
