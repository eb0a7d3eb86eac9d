package renderer

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"

	"github.com/vkngwrapper/vkencoder/internal/logging"
)

const debugRelayCapacity = 256

type debugMessage struct {
	level   logging.Level
	msgType string
	text    string
}

// debugRelay moves debug messenger callbacks off driver threads. The callback only ever does a
// non-blocking send; one goroutine drains the queue into the log.
type debugRelay struct {
	log     *logging.Logger
	context string

	messages chan debugMessage
	stop     chan struct{}
	done     chan struct{}
	dropped  atomic.Int64
	stopOnce sync.Once
}

func makeRelay(log *logging.Logger, context string, capacity int) *debugRelay {
	return &debugRelay{
		log:      log,
		context:  context,
		messages: make(chan debugMessage, capacity),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func newDebugRelay(log *logging.Logger, context string) *debugRelay {
	r := makeRelay(log, context, debugRelayCapacity)
	go r.run()
	return r
}

func (r *debugRelay) run() {
	defer close(r.done)
	for {
		select {
		case msg := <-r.messages:
			r.emit(msg)
		case <-r.stop:
			for {
				select {
				case msg := <-r.messages:
					r.emit(msg)
				default:
					return
				}
			}
		}
	}
}

func (r *debugRelay) emit(msg debugMessage) {
	fields := logging.Fields{"type": msg.msgType}
	if r.context != "" {
		fields["context"] = r.context
	}
	r.log.With(fields).Log(msg.level, "validation layer: "+msg.text)
}

// post never blocks. Messages arriving on a full queue or after Close are counted and dropped.
func (r *debugRelay) post(msg debugMessage) {
	select {
	case <-r.stop:
		r.dropped.Add(1)
		return
	default:
	}

	select {
	case r.messages <- msg:
	default:
		r.dropped.Add(1)
	}
}

// callback is installed as the messenger's user callback. It never aborts the triggering call.
func (r *debugRelay) callback(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	text := ""
	if data != nil {
		text = data.Message
	}
	r.post(debugMessage{level: severityLevel(severity), msgType: messageTypeName(msgType), text: text})
	return false
}

func (r *debugRelay) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains what is queued and stops the drain goroutine. Safe to call more than once.
func (r *debugRelay) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
		<-r.done
		if dropped := r.dropped.Load(); dropped > 0 {
			r.log.Warnf("dropped %d debug messenger messages", dropped)
		}
	})
}

func severityLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) logging.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return logging.Error
	case severity&ext_debug_utils.SeverityWarning != 0:
		return logging.Warn
	case severity&ext_debug_utils.SeverityInfo != 0:
		return logging.Info
	default:
		return logging.Verbose
	}
}

func messageTypeName(msgType ext_debug_utils.DebugUtilsMessageTypeFlags) string {
	var names []string
	if msgType&ext_debug_utils.TypeGeneral != 0 {
		names = append(names, "General")
	}
	if msgType&ext_debug_utils.TypeValidation != 0 {
		names = append(names, "Validation")
	}
	if msgType&ext_debug_utils.TypePerformance != 0 {
		names = append(names, "Performance")
	}
	if len(names) == 0 {
		return "Unknown"
	}
	return strings.Join(names, "|")
}

func debugMessengerCreateInfo(relay *debugRelay) ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityVerbose | ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityError,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    relay.callback,
	}
}
