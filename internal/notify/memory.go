package notify

import "sync"

// Memory is an in-memory Sink for tests. It records shown notifications and
// can simulate user activation.
type Memory struct {
	mu         sync.Mutex
	shown      []Notification
	withdrawn  []string
	onActivate ActivationFunc
}

func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Show(n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, n)
	return nil
}

func (s *Memory) Withdraw(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawn = append(s.withdrawn, id)
	return nil
}

func (s *Memory) OnActivation(fn ActivationFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onActivate = fn
}

// Activate simulates the user clicking the notification with the given ID.
func (s *Memory) Activate(id string) {
	s.mu.Lock()
	var fn ActivationFunc
	var url string
	for _, n := range s.shown {
		if n.ID == id {
			url = n.URL
			break
		}
	}
	fn = s.onActivate
	s.mu.Unlock()
	if fn != nil && url != "" {
		fn(url)
	}
}

// Shown returns the notifications shown so far.
func (s *Memory) Shown() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.shown))
	copy(out, s.shown)
	return out
}

// Withdrawn returns the withdrawn IDs so far.
func (s *Memory) Withdrawn() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.withdrawn))
	copy(out, s.withdrawn)
	return out
}

var _ Sink = (*Memory)(nil)
var _ Activatable = (*Memory)(nil)
