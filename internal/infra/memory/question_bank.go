package memory

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// Bank holds the question pool hosts draw from. IDs are assigned
// monotonically so stale-answer checks stay unambiguous across quizzes.
type Bank struct {
	mu     sync.Mutex
	pool   []domain.Question
	nextID int
	rnd    *rand.Rand
}

func NewBank() *Bank {
	return &Bank{
		nextID: 1,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DefaultBank returns a bank preloaded with the demo networking questions.
func DefaultBank() *Bank {
	b := NewBank()
	defaults := []struct {
		prompt  string
		options [4]string
		correct int
	}{
		{"What is the default port for HTTP?", [4]string{"80", "443", "8080", "3000"}, 0},
		{"Which protocol is connection-oriented?", [4]string{"UDP", "TCP", "ICMP", "DNS"}, 1},
		{"What is the maximum value of a port number?", [4]string{"1024", "32767", "65535", "99999"}, 2},
		{"Which layer of the OSI model does socket programming operate at?", [4]string{"Physical", "Data Link", "Network", "Transport"}, 3},
		{"What is the loopback IP address?", [4]string{"192.168.0.1", "127.0.0.1", "0.0.0.0", "255.255.255.255"}, 1},
		{"Which DNS record maps a hostname to an IPv4 address?", [4]string{"MX", "CNAME", "A", "TXT"}, 2},
		{"Which HTTP status code means Not Found?", [4]string{"301", "403", "404", "500"}, 2},
		{"What does TLS primarily provide?", [4]string{"Compression", "Encryption", "Routing", "Caching"}, 1},
	}
	for _, d := range defaults {
		_, _ = b.Add(d.prompt, d.options, d.correct, 30, 10)
	}
	return b
}

// Add validates and appends a question, returning it with its assigned ID.
func (b *Bank) Add(prompt string, options [4]string, correctIndex, timeLimitSec, points int) (domain.Question, error) {
	q := domain.Question{
		Prompt:       strings.TrimSpace(prompt),
		Options:      options,
		CorrectIndex: correctIndex,
		TimeLimitSec: timeLimitSec,
		Points:       points,
	}
	if err := validate(q); err != nil {
		return domain.Question{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	q.ID = b.nextID
	b.nextID++
	b.pool = append(b.pool, q)
	return q, nil
}

func (b *Bank) Remove(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, q := range b.pool {
		if q.ID == id {
			b.pool = append(b.pool[:i], b.pool[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Bank) Get(id int) (domain.Question, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.pool {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

func (b *Bank) All() []domain.Question {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Question, len(b.pool))
	copy(out, b.pool)
	return out
}

// Random returns up to count questions in shuffled order.
func (b *Bank) Random(count int) []domain.Question {
	b.mu.Lock()
	defer b.mu.Unlock()
	shuffled := make([]domain.Question, len(b.pool))
	copy(shuffled, b.pool)
	b.rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if count < len(shuffled) {
		shuffled = shuffled[:count]
	}
	return shuffled
}

func (b *Bank) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pool = nil
	b.nextID = 1
}

// LoadSet exposes the whole bank as a question set so the bank can back
// the repository when no external store is configured.
func (b *Bank) LoadSet(_ context.Context, setID string) (domain.QuestionSet, error) {
	return domain.QuestionSet{ID: setID, Questions: b.All()}, nil
}

func validate(q domain.Question) error {
	if q.Prompt == "" {
		return domain.ErrInvalidQuestion
	}
	for _, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return domain.ErrInvalidQuestion
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex > 3 {
		return domain.ErrInvalidQuestion
	}
	if q.TimeLimitSec <= 0 || q.Points <= 0 {
		return domain.ErrInvalidQuestion
	}
	return nil
}
