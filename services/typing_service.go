package services

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"
)

type ITypingService interface {
	Typing(ctx context.Context, from, to string)
	StopTyping(ctx context.Context, from, to string)
	Interrupt(ctx context.Context, from, to string)
	DropSender(ctx context.Context, from string)
	Close()
}

// TypingService relays typing indicators. Nothing is persisted and signals
// towards offline users are dropped.
// Each typing signal arms an idle timer for its direction; when it fires without
// a stop or a send in between, a stop_typing is emitted on behalf of the sender.
type TypingService struct {
	notifier Notifier
	idle     time.Duration
	log      *slog.Logger

	mu         sync.Mutex
	timers     map[string]*typingTimer // "from>to" -> armed timer
	generation uint64
}

type typingTimer struct {
	from       string
	to         string
	generation uint64
	timer      *time.Timer
}

// NewTypingService disables the idle stop when idle is not positive.
func NewTypingService(registry contract.IRegistry, idle time.Duration, log *slog.Logger) *TypingService {
	return &TypingService{
		notifier: NewNotifier(registry, log),
		idle:     idle,
		log:      log,
		timers:   make(map[string]*typingTimer),
	}
}

func direction(from, to string) string {
	return from + ">" + to
}

func (s *TypingService) Typing(ctx context.Context, from, to string) {
	s.notifier.Notify(ctx, to, event.NewTyping(from))
	if s.idle <= 0 {
		return
	}

	key := direction(from, to)
	s.mu.Lock()
	defer s.mu.Unlock()
	if armed, ok := s.timers[key]; ok {
		armed.timer.Stop()
	}
	s.generation++
	generation := s.generation
	s.timers[key] = &typingTimer{
		from:       from,
		to:         to,
		generation: generation,
		timer:      time.AfterFunc(s.idle, func() { s.expire(key, generation) }),
	}
}

func (s *TypingService) StopTyping(ctx context.Context, from, to string) {
	s.disarm(direction(from, to))
	s.notifier.Notify(ctx, to, event.NewStopTyping(from))
}

// Interrupt emits stop_typing only if from was typing to to, used once a message is sent.
func (s *TypingService) Interrupt(ctx context.Context, from, to string) {
	if s.disarm(direction(from, to)) {
		s.notifier.Notify(ctx, to, event.NewStopTyping(from))
	}
}

// DropSender stops every indicator from has raised, used when it leaves.
func (s *TypingService) DropSender(ctx context.Context, from string) {
	s.mu.Lock()
	var dropped []*typingTimer
	for key, armed := range s.timers {
		if armed.from == from {
			armed.timer.Stop()
			delete(s.timers, key)
			dropped = append(dropped, armed)
		}
	}
	s.mu.Unlock()

	for _, armed := range dropped {
		s.notifier.Notify(ctx, armed.to, event.NewStopTyping(from))
	}
}

// Close cancels every armed timer without notifying anyone.
func (s *TypingService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, armed := range s.timers {
		armed.timer.Stop()
		delete(s.timers, key)
	}
}

// Armed returns the number of indicators waiting for their idle stop.
func (s *TypingService) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *TypingService) disarm(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed, ok := s.timers[key]
	if !ok {
		return false
	}
	armed.timer.Stop()
	delete(s.timers, key)
	return true
}

// expire ignores timers that were re-armed or disarmed after being scheduled.
func (s *TypingService) expire(key string, generation uint64) {
	s.mu.Lock()
	armed, ok := s.timers[key]
	if !ok || armed.generation != generation {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()

	s.log.Debug("Typing idle, stopping indicator", "from", armed.from, "to", armed.to)
	s.notifier.Notify(context.Background(), armed.to, event.NewStopTyping(armed.from))
}
