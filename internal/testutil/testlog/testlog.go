package testlog

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/danmuck/vimctl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Msgf("test=%s", t.Name())
}

// Capture is a JSON logger whose output can be inspected by a test.
type Capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *Capture) Logger() zerolog.Logger {
	return zerolog.New(c).Level(zerolog.TraceLevel)
}

// Count returns the number of captured lines at level containing substr.
func (c *Capture) Count(level zerolog.Level, substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	marker := `"level":"` + level.String() + `"`
	for _, line := range strings.Split(c.buf.String(), "\n") {
		if strings.Contains(line, marker) && strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
