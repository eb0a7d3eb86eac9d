package renderer

import (
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"

	"github.com/vkngwrapper/vkencoder/internal/logging"
)

func TestSeverityLevel(t *testing.T) {
	c := qt.New(t)

	c.Assert(severityLevel(ext_debug_utils.SeverityVerbose), qt.Equals, logging.Verbose)
	c.Assert(severityLevel(ext_debug_utils.SeverityInfo), qt.Equals, logging.Info)
	c.Assert(severityLevel(ext_debug_utils.SeverityWarning), qt.Equals, logging.Warn)
	c.Assert(severityLevel(ext_debug_utils.SeverityError), qt.Equals, logging.Error)
}

func TestMessageTypeName(t *testing.T) {
	c := qt.New(t)

	c.Assert(messageTypeName(ext_debug_utils.TypeGeneral), qt.Equals, "General")
	c.Assert(messageTypeName(ext_debug_utils.TypeValidation), qt.Equals, "Validation")
	c.Assert(messageTypeName(ext_debug_utils.TypePerformance), qt.Equals, "Performance")
	c.Assert(messageTypeName(ext_debug_utils.TypeValidation|ext_debug_utils.TypePerformance), qt.Equals, "Validation|Performance")
}

func TestDebugRelayLogsThroughSink(t *testing.T) {
	c := qt.New(t)
	log, buf := captureLog()
	relay := newDebugRelay(log, "session-7")

	keepGoing := relay.callback(ext_debug_utils.TypeValidation, ext_debug_utils.SeverityError,
		&ext_debug_utils.DebugUtilsMessengerCallbackData{Message: "vkCreateDevice: bad queue"})
	c.Assert(keepGoing, qt.IsFalse)
	relay.callback(ext_debug_utils.TypeGeneral, ext_debug_utils.SeverityVerbose, nil)
	relay.Close()
	relay.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	c.Assert(lines, qt.DeepEquals, []string{
		"[Error] validation layer: vkCreateDevice: bad queue context=session-7 type=Validation",
		"[Verbose] validation layer:  context=session-7 type=General",
	})
}

func TestDebugRelayNeverBlocks(t *testing.T) {
	c := qt.New(t)
	log, buf := captureLog()
	// Not started: nothing drains the queue
	relay := makeRelay(log, "", 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			relay.callback(ext_debug_utils.TypeGeneral, ext_debug_utils.SeverityWarning,
				&ext_debug_utils.DebugUtilsMessengerCallbackData{Message: "spam"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.Fatal("callback blocked on a full relay")
	}
	c.Assert(relay.Dropped(), qt.Equals, int64(3))

	go relay.run()
	relay.Close()
	c.Assert(strings.Count(buf.String(), "[Warn] validation layer: spam type=General"), qt.Equals, 2)
	c.Assert(buf.String(), qt.Contains, "[Warn] dropped 3 debug messenger messages")

	relay.callback(ext_debug_utils.TypeGeneral, ext_debug_utils.SeverityError, nil)
	c.Assert(relay.Dropped(), qt.Equals, int64(4))
}

func TestDebugMessengerCreateInfo(t *testing.T) {
	c := qt.New(t)

	info := debugMessengerCreateInfo(makeRelay(logging.Discard(), "", 1))
	c.Assert(info.MessageSeverity, qt.Equals, ext_debug_utils.SeverityVerbose|ext_debug_utils.SeverityWarning|ext_debug_utils.SeverityError)
	c.Assert(info.MessageType, qt.Equals, ext_debug_utils.TypeGeneral|ext_debug_utils.TypeValidation|ext_debug_utils.TypePerformance)
	c.Assert(info.UserCallback, qt.Not(qt.IsNil))
}
