package window

import (
	"time"

	"github.com/loov/hrtime"

	"github.com/vkngwrapper/vkencoder/internal/logging"
)

const statsInterval = 300

// frameClock accumulates frame durations and logs an average every interval frames.
type frameClock struct {
	log      *logging.Logger
	interval int
	now      func() time.Duration

	start  time.Duration
	frames int
	total  time.Duration
	worst  time.Duration
}

func newFrameClock(log *logging.Logger, interval int) *frameClock {
	return &frameClock{log: log, interval: interval, now: hrtime.Now}
}

func (c *frameClock) begin() {
	c.start = c.now()
}

func (c *frameClock) end() {
	elapsed := c.now() - c.start
	c.frames++
	c.total += elapsed
	if elapsed > c.worst {
		c.worst = elapsed
	}

	if c.frames >= c.interval {
		c.report()
	}
}

func (c *frameClock) average() time.Duration {
	if c.frames == 0 {
		return 0
	}
	return c.total / time.Duration(c.frames)
}

func (c *frameClock) report() {
	if c.frames == 0 {
		return
	}
	c.log.With(logging.Fields{
		"frames": c.frames,
		"avg":    c.average(),
		"worst":  c.worst,
	}).Verbosef("frame timing")

	c.frames = 0
	c.total = 0
	c.worst = 0
}
