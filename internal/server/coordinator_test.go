package server

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"
)

type fakeConn struct {
	id string

	mu    sync.Mutex
	lines []string
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
}

func (f *fakeConn) Close() {}

func (f *fakeConn) countType(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, line := range f.lines {
		if strings.HasPrefix(line, typ+"|") {
			n++
		}
	}
	return n
}

func (f *fakeConn) lastOfType(typ string) (protocol.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(f.lines[i], typ+"|") {
			return protocol.Decode(f.lines[i]), true
		}
	}
	return protocol.Message{}, false
}

// waitFor polls until cond holds or the deadline passes. Scheduled work runs
// on its own goroutines after a clock advance, so effects are not visible the
// instant Advance returns.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeOptions uses production-realistic durations; the fake clock makes them
// free to cross in tests.
func fakeOptions() (Options, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return Options{
		Clock:         clock,
		TickInterval:  time.Second,
		StartDelay:    3 * time.Second,
		AdvanceDelay:  3 * time.Second,
		AdvanceBuffer: 5 * time.Second,
	}, clock
}

// advanceSeconds steps the clock one second at a time so the ticker goroutine
// can drain each tick before the next lands.
func advanceSeconds(clock *clockwork.FakeClock, n int) {
	for i := 0; i < n; i++ {
		clock.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
}

func twoQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, Prompt: "Which protocol is connection-oriented?", Options: [4]string{"UDP", "TCP", "ICMP", "DNS"}, CorrectIndex: 1, TimeLimitSec: 30, Points: 10},
		{ID: 2, Prompt: "What is the loopback IP address?", Options: [4]string{"192.168.0.1", "127.0.0.1", "0.0.0.0", "255.255.255.255"}, CorrectIndex: 1, TimeLimitSec: 30, Points: 10},
	}
}

func joinTwo(t *testing.T, c *Coordinator) (*fakeConn, *fakeConn) {
	t.Helper()
	a := &fakeConn{id: "conn-a"}
	b := &fakeConn{id: "conn-b"}
	c.AcceptConnection(a)
	c.AcceptConnection(b)
	if err := c.Join("conn-a", "u1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := c.Join("conn-b", "u2", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	return a, b
}

// startAndServeFirst starts the quiz and crosses the countdown so the first
// question is on the wire.
func startAndServeFirst(t *testing.T, c *Coordinator, clock *clockwork.FakeClock, conn *fakeConn, questions []domain.Question) {
	t.Helper()
	if err := c.StartQuiz(questions); err != nil {
		t.Fatalf("start: %v", err)
	}
	advanceSeconds(clock, 3)
	waitFor(t, "first question", func() bool { return conn.countType(protocol.TypeQuestion) == 1 })
}

func TestStartQuizRejectsWhileRunning(t *testing.T) {
	opts, _ := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	joinTwo(t, c)

	if err := c.StartQuiz(twoQuestions()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.StartQuiz(twoQuestions()); !errors.Is(err, domain.ErrQuizActive) {
		t.Fatalf("expected already-in-progress rejection, got %v", err)
	}
}

func TestQuestionBroadcastAndTimerSync(t *testing.T) {
	opts, clock := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	a, b := joinTwo(t, c)

	startAndServeFirst(t, c, clock, a, twoQuestions())
	if got := a.countType(protocol.TypeQuizStart); got != 1 {
		t.Fatalf("QUIZ_START broadcast %d times", got)
	}
	waitFor(t, "question for second participant", func() bool {
		return b.countType(protocol.TypeQuestion) == 1
	})

	// First tick is immediate; the next lands one tick interval later.
	advanceSeconds(clock, 1)
	waitFor(t, "timer sync ticks", func() bool {
		return a.countType(protocol.TypeTimerSync) >= 2
	})

	msg, ok := a.lastOfType(protocol.TypeQuestion)
	if !ok {
		t.Fatalf("no question received")
	}
	q, ok := protocol.ParseQuestion(msg.Fields())
	if !ok || q.CorrectIndex != -1 {
		t.Fatalf("question wire form leaked the answer: %+v", q)
	}
}

func TestAnswerFlowWithAutoAdvanceAndEnd(t *testing.T) {
	opts, clock := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	a, _ := joinTwo(t, c)

	startAndServeFirst(t, c, clock, a, twoQuestions()[:1])

	res, err := c.RecordAnswer("u1", domain.AnswerSubmission{QuestionID: 1, ChosenOption: 1, LatencyMs: 500})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !res.Correct || res.PointsEarned == 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	// Only one of two participants answered; the question list is exhausted
	// after the auto-advance, so the quiz ends on its own.
	advanceSeconds(clock, 3)
	waitFor(t, "quiz end", func() bool { return a.countType(protocol.TypeQuizEnd) == 1 })

	msg, _ := a.lastOfType(protocol.TypeQuizEnd)
	entries := protocol.ParseLeaderboard(msg.Payload)
	if len(entries) != 2 {
		t.Fatalf("expected 2 leaderboard entries, got %+v", entries)
	}
	if entries[0].DisplayName != "Alice" || entries[0].Answered != 1 {
		t.Fatalf("expected Alice on top with 1 answered, got %+v", entries[0])
	}
	if entries[1].DisplayName != "Bob" || entries[1].Answered != 0 {
		t.Fatalf("non-answering participant should stay at 0 answered: %+v", entries[1])
	}
}

func TestDeadlineAdvancesWithoutAnswers(t *testing.T) {
	opts, clock := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	a, _ := joinTwo(t, c)

	// One question, nobody answers: the deadline task must still end the run
	// once the time limit plus the buffer has elapsed.
	startAndServeFirst(t, c, clock, a, twoQuestions()[:1])
	advanceSeconds(clock, 36)
	waitFor(t, "quiz end via deadline", func() bool { return a.countType(protocol.TypeQuizEnd) == 1 })
}

func TestStaleAnswerRejected(t *testing.T) {
	opts, clock := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	a, _ := joinTwo(t, c)

	startAndServeFirst(t, c, clock, a, twoQuestions())

	res, err := c.RecordAnswer("u1", domain.AnswerSubmission{QuestionID: 99, ChosenOption: 0})
	if !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected stale rejection, got %v", err)
	}
	if res.Message != "invalid question" {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestSkipCancelsPendingAdvance(t *testing.T) {
	opts, clock := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	a, _ := joinTwo(t, c)

	startAndServeFirst(t, c, clock, a, twoQuestions())

	// Arm the auto-advance, then skip before it fires.
	if _, err := c.RecordAnswer("u1", domain.AnswerSubmission{QuestionID: 1, ChosenOption: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := c.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	waitFor(t, "second question", func() bool { return a.countType(protocol.TypeQuestion) == 2 })

	// The cancelled advance must not fire again: question two stays current
	// well past the advance delay.
	advanceSeconds(clock, 8)
	time.Sleep(50 * time.Millisecond)
	if got := a.countType(protocol.TypeQuestion); got != 2 {
		t.Fatalf("stale auto-advance fired: %d question broadcasts", got)
	}
	msg, _ := a.lastOfType(protocol.TypeQuestion)
	q, _ := protocol.ParseQuestion(msg.Fields())
	if q.ID != 2 {
		t.Fatalf("skip repeated a question: current is %d", q.ID)
	}
}

func TestWaitForAllPolicy(t *testing.T) {
	opts, clock := fakeOptions()
	opts.AdvancePolicy = AdvanceWaitForAll
	c := NewCoordinator(opts)
	defer c.Stop()
	a, _ := joinTwo(t, c)

	startAndServeFirst(t, c, clock, a, twoQuestions())

	if _, err := c.RecordAnswer("u1", domain.AnswerSubmission{QuestionID: 1, ChosenOption: 1}); err != nil {
		t.Fatalf("record u1: %v", err)
	}
	// One of two answered: no advance yet.
	advanceSeconds(clock, 5)
	time.Sleep(50 * time.Millisecond)
	if got := a.countType(protocol.TypeQuestion); got != 1 {
		t.Fatalf("advanced before everyone answered: %d", got)
	}

	if _, err := c.RecordAnswer("u2", domain.AnswerSubmission{QuestionID: 1, ChosenOption: 0}); err != nil {
		t.Fatalf("record u2: %v", err)
	}
	advanceSeconds(clock, 4)
	waitFor(t, "advance once all answered", func() bool { return a.countType(protocol.TypeQuestion) == 2 })
}

func TestWaitForAllAdvancesWhenHoldoutDisconnects(t *testing.T) {
	opts, clock := fakeOptions()
	opts.AdvancePolicy = AdvanceWaitForAll
	c := NewCoordinator(opts)
	defer c.Stop()
	a, _ := joinTwo(t, c)

	startAndServeFirst(t, c, clock, a, twoQuestions())

	if _, err := c.RecordAnswer("u1", domain.AnswerSubmission{QuestionID: 1, ChosenOption: 1}); err != nil {
		t.Fatalf("record u1: %v", err)
	}
	advanceSeconds(clock, 5)
	time.Sleep(50 * time.Millisecond)
	if got := a.countType(protocol.TypeQuestion); got != 1 {
		t.Fatalf("advanced before everyone answered: %d", got)
	}

	// The last holdout leaves; everyone still present has answered, so the
	// advance must fire without waiting for the deadline.
	c.RemoveConnection("conn-b")
	advanceSeconds(clock, 4)
	waitFor(t, "advance after holdout left", func() bool { return a.countType(protocol.TypeQuestion) == 2 })
}

func TestWaitForAllIgnoresDepartedAnswers(t *testing.T) {
	opts, clock := fakeOptions()
	opts.AdvancePolicy = AdvanceWaitForAll
	c := NewCoordinator(opts)
	defer c.Stop()
	a, b := joinTwo(t, c)

	startAndServeFirst(t, c, clock, a, twoQuestions())

	// The only participant who answered leaves. Their recorded answer must
	// not count toward the remaining holdout's everyone-answered gate.
	if _, err := c.RecordAnswer("u1", domain.AnswerSubmission{QuestionID: 1, ChosenOption: 1}); err != nil {
		t.Fatalf("record u1: %v", err)
	}
	c.RemoveConnection("conn-a")
	advanceSeconds(clock, 5)
	time.Sleep(50 * time.Millisecond)
	if got := b.countType(protocol.TypeQuestion); got != 1 {
		t.Fatalf("advanced on a departed participant's answer: %d", got)
	}

	if _, err := c.RecordAnswer("u2", domain.AnswerSubmission{QuestionID: 1, ChosenOption: 0}); err != nil {
		t.Fatalf("record u2: %v", err)
	}
	advanceSeconds(clock, 4)
	waitFor(t, "advance once the holdout answered", func() bool { return b.countType(protocol.TypeQuestion) == 2 })
}

func TestPauseResumeBroadcastsAndRejections(t *testing.T) {
	opts, clock := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	a, _ := joinTwo(t, c)

	if err := c.Pause(); !errors.Is(err, domain.ErrQuizNotActive) {
		t.Fatalf("pause without quiz should be rejected, got %v", err)
	}

	questions := []domain.Question{{ID: 1, Prompt: "q", Options: [4]string{"a", "b", "c", "d"}, CorrectIndex: 0, TimeLimitSec: 60, Points: 10}}
	startAndServeFirst(t, c, clock, a, questions)

	if err := c.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	state, _, _, _ := c.Status()
	if state != "paused" {
		t.Fatalf("expected paused status, got %s", state)
	}
	if err := c.Extend(30); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}

	if got := a.countType(protocol.TypeTimerCtl); got != 3 {
		t.Fatalf("expected pause/extend/resume broadcasts, got %d", got)
	}
	msg, _ := a.lastOfType(protocol.TypeTimerCtl)
	fields := msg.Fields()
	if fields[0] != protocol.TimerCtlResume || fields[1] != "90" {
		t.Fatalf("resume should continue from frozenRemaining+delta, got %v", fields)
	}
}

func TestPauseSuspendsDeadline(t *testing.T) {
	opts, clock := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	a, _ := joinTwo(t, c)

	startAndServeFirst(t, c, clock, a, twoQuestions()[:1])
	if err := c.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Far past the original time limit plus buffer: a paused question must
	// not be force-advanced.
	advanceSeconds(clock, 60)
	time.Sleep(50 * time.Millisecond)
	if got := a.countType(protocol.TypeQuizEnd); got != 0 {
		t.Fatalf("deadline fired while paused")
	}

	// Resume re-arms the deadline from the frozen remaining value.
	if err := c.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	advanceSeconds(clock, 36)
	waitFor(t, "quiz end after resume", func() bool { return a.countType(protocol.TypeQuizEnd) == 1 })
}

func TestExtendPostponesDeadline(t *testing.T) {
	opts, clock := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	a, _ := joinTwo(t, c)

	startAndServeFirst(t, c, clock, a, twoQuestions()[:1])

	// 20s of the 30s limit remain; extending by 30 pushes the deadline out
	// past where the unextended one would have fired.
	advanceSeconds(clock, 10)
	if err := c.Extend(30); err != nil {
		t.Fatalf("extend: %v", err)
	}
	advanceSeconds(clock, 30)
	time.Sleep(50 * time.Millisecond)
	if got := a.countType(protocol.TypeQuizEnd); got != 0 {
		t.Fatalf("deadline ignored the extension")
	}

	advanceSeconds(clock, 26)
	waitFor(t, "quiz end after extended deadline", func() bool { return a.countType(protocol.TypeQuizEnd) == 1 })
}

func TestEndQuizIdempotent(t *testing.T) {
	opts, _ := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	a, _ := joinTwo(t, c)

	if err := c.StartQuiz(twoQuestions()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.EndQuiz(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := c.EndQuiz(); err != nil {
		t.Fatalf("second end: %v", err)
	}
	if got := a.countType(protocol.TypeQuizEnd); got != 1 {
		t.Fatalf("final leaderboard broadcast %d times", got)
	}
}

func TestRemovedConnectionGetsNoBroadcasts(t *testing.T) {
	opts, clock := fakeOptions()
	c := NewCoordinator(opts)
	defer c.Stop()
	a, b := joinTwo(t, c)

	c.RemoveConnection("conn-b")
	before := b.countType(protocol.TypeQuizStart)

	startAndServeFirst(t, c, clock, a, twoQuestions())

	if got := b.countType(protocol.TypeQuizStart); got != before {
		t.Fatalf("dead connection still receives broadcasts")
	}
	// Bob was removed before the start, so the new session has only Alice.
	if lb := c.Leaderboard(); len(lb) != 1 || lb[0].DisplayName != "Alice" {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}
}
