package reaper

import (
	"log/slog"
	"strings"
	stdTime "time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/jdginn/controlcore/logging"
)

var dispatchLog = logging.Get(logging.OSC_IN)

type namedHandler struct {
	id      int
	name    string
	handler func(*osc.Message)
}

// Dispatcher is a custom osc.Dispatcher, implementing the devices.Dispatcher
// interface (wildcard segment matching instead of go-osc's exact-address map).
type Dispatcher struct {
	handlers []namedHandler
	nextID   int
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: []namedHandler{}}
}

// AddMsgHandler registers handler for addr (may contain "@" wildcard segments
// and a trailing "*") and returns a func to unregister it, matching
// devices.Dispatcher.
func (s *Dispatcher) AddMsgHandler(addr string, handler func(*osc.Message)) func() {
	s.nextID++
	id := s.nextID
	s.handlers = append(s.handlers, namedHandler{id: id, name: addr, handler: handler})
	return func() {
		for i, h := range s.handlers {
			if h.id == id {
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

// matchAddr checks if messageAddr matches the path pattern.
// Each "@" in path acts as a wildcard for a segment, and captured segments are returned.
// If path ends with "*", any additional segments in messageAddr are ignored.
// "*" does not capture anything.
func matchAddr(path, messageAddr string) (bool, []string) {
	pathSegs := strings.Split(path, "/")
	addrSegs := strings.Split(messageAddr, "/")

	endsWithStar := len(pathSegs) > 0 && pathSegs[len(pathSegs)-1] == "*"
	matchLen := len(pathSegs)
	if endsWithStar {
		// Remove the "*" for matching; allow extra segments in addrSegs
		matchLen--
		if len(addrSegs) < matchLen {
			return false, nil
		}
	} else {
		if len(pathSegs) != len(addrSegs) {
			return false, nil
		}
	}

	var captures []string
	for i := 0; i < matchLen; i++ {
		p := pathSegs[i]
		if p == "@" {
			captures = append(captures, addrSegs[i])
		} else if p != addrSegs[i] {
			return false, nil
		}
	}

	// If endsWithStar, allow any suffix
	return true, captures
}

// Dispatch dispatches OSC packets. Implements the Dispatcher interface.
func (s *Dispatcher) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	default:
		return

	case *osc.Message:
		dispatchLog.Debug("osc message", slog.String("address", p.Address))
		for _, namedHandler := range s.handlers {
			if match, args := matchAddr(namedHandler.name, p.Address); match {
				for _, arg := range args {
					p.Arguments = append(p.Arguments, arg)
				}
				namedHandler.handler(p)
			}
		}

	case *osc.Bundle:
		timer := stdTime.NewTimer(p.Timetag.ExpiresIn())

		go func() {
			<-timer.C
			for _, message := range p.Messages {
				dispatchLog.Debug("osc message", slog.String("address", message.Address))
				for _, namedHandler := range s.handlers {
					if match, args := matchAddr(namedHandler.name, message.Address); match {
						for _, arg := range args {
							message.Arguments = append(message.Arguments, arg)
						}
						namedHandler.handler(message)
					}
				}
			}

			// Process all bundles
			for _, b := range p.Bundles {
				s.Dispatch(b)
			}
		}()
	}
}
