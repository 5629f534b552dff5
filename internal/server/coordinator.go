package server

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"
	"live-quiz-service/internal/quiz"
	"live-quiz-service/internal/scoring"
)

// AdvancePolicy selects how the session moves to the next question without
// administrative action. The two policies are never blended.
type AdvancePolicy string

const (
	// AdvanceAfterAnswer re-arms a fixed delay on every accepted answer, so
	// participants see one result before the next question.
	AdvanceAfterAnswer AdvancePolicy = "afterAnswer"
	// AdvanceWaitForAll advances only once every registered participant has
	// answered the current question.
	AdvanceWaitForAll AdvancePolicy = "waitForAll"
)

// Conn is one live participant connection as the coordinator sees it.
// Send must never block; transports buffer writes and drop the connection
// on overflow.
type Conn interface {
	ID() string
	Send(line string)
	Close()
}

// Options tunes the coordinator. Zero values select defaults.
type Options struct {
	Policy        scoring.Policy
	Clock         clockwork.Clock
	Sink          Sink
	TickInterval  time.Duration // timer broadcast period, default 1s
	StartDelay    time.Duration // countdown before the first question, default 3s
	AdvancePolicy AdvancePolicy
	AdvanceDelay  time.Duration // delay before an auto-advance fires, default 3s
	AdvanceBuffer time.Duration // added to the time limit for the deadline task, default 5s
}

func (o *Options) withDefaults() {
	if o.Policy == nil {
		o.Policy = scoring.NewStreakPolicy()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Sink == nil {
		o.Sink = NopSink{}
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.StartDelay <= 0 {
		o.StartDelay = 3 * time.Second
	}
	if o.AdvancePolicy == "" {
		o.AdvancePolicy = AdvanceAfterAnswer
	}
	if o.AdvanceDelay <= 0 {
		o.AdvanceDelay = 3 * time.Second
	}
	if o.AdvanceBuffer <= 0 {
		o.AdvanceBuffer = 5 * time.Second
	}
}

type connEntry struct {
	conn          Conn
	participantID string
	displayName   string
}

// Coordinator owns the authoritative session, the scoring policy, the
// master timer, the auto-advance scheduling, and the live connection set.
// One mutex guards every state transition, so an answer can never be
// attributed to a question that is mid-transition.
type Coordinator struct {
	opts Options

	mu      sync.Mutex
	session *quiz.Session
	conns   map[string]*connEntry

	timer     *timerState
	timerStop chan struct{}

	// questionEpoch invalidates scheduled work from a previous question.
	// Every transition bumps it; callbacks re-check it under the lock.
	questionEpoch uint64
	advanceTimer  clockwork.Timer
	deadlineTimer clockwork.Timer
}

// NewCoordinator builds a coordinator with an idle empty session.
func NewCoordinator(opts Options) *Coordinator {
	opts.withDefaults()
	c := &Coordinator{
		opts:  opts,
		conns: make(map[string]*connEntry),
	}
	c.session = quiz.New(newSessionID(), nil, opts.Clock.Now)
	return c
}

func newSessionID() string {
	return "session-" + uuid.NewString()
}

// AcceptConnection registers a live connection.
func (c *Coordinator) AcceptConnection(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn.ID()] = &connEntry{conn: conn}
	log.Info().Str("conn", conn.ID()).Int("connected", len(c.conns)).Msg("connection accepted")
	c.opts.Sink.OnParticipantChange(len(c.conns))
}

// RemoveConnection drops a connection and its participant. Remaining
// participants are unaffected.
func (c *Coordinator) RemoveConnection(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.conns[connID]
	if !ok {
		return
	}
	delete(c.conns, connID)
	if entry.participantID != "" {
		c.session.RemoveParticipant(entry.participantID)
		log.Info().Str("participant", entry.participantID).Msg("participant left")
		c.broadcastStudentCountLocked()
		// A departing holdout may have been the last unanswered participant;
		// the everyone-answered gate must be re-evaluated here, not only on
		// answer arrival.
		if c.opts.AdvancePolicy == AdvanceWaitForAll && c.session.Active() && c.session.ParticipantCount() > 0 {
			c.armAutoAdvanceLocked()
		}
	}
	c.opts.Sink.OnParticipantChange(len(c.conns))
}

// Join binds a self-declared participant identity to a connection and
// registers it in the session.
func (c *Coordinator) Join(connID, participantID, displayName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.conns[connID]
	if !ok {
		return fmt.Errorf("unknown connection %s", connID)
	}
	entry.participantID = participantID
	entry.displayName = displayName
	c.session.AddParticipant(participantID, displayName)
	log.Info().Str("participant", participantID).Str("name", displayName).Msg("participant joined")

	entry.conn.Send(protocol.Encode(protocol.TypeAck, "Welcome "+displayName+"!"))
	c.broadcastStudentCountLocked()
	return nil
}

// StartQuiz replaces the session with a fresh one over the given questions
// and schedules the first question after the start countdown. Starting
// while a quiz is running is rejected with a clear error, never a crash.
func (c *Coordinator) StartQuiz(questions []domain.Question) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Active() {
		log.Warn().Msg("start rejected: quiz already in progress")
		return domain.ErrQuizActive
	}
	if len(questions) == 0 {
		return domain.ErrNoMoreQuestions
	}

	c.cancelScheduledLocked()
	c.stopTimerLoopLocked()

	session := quiz.New(newSessionID(), questions, c.opts.Clock.Now)
	for _, entry := range c.conns {
		if entry.participantID != "" {
			session.AddParticipant(entry.participantID, entry.displayName)
		}
	}
	c.session = session
	if err := session.Start(); err != nil {
		return err
	}

	log.Info().Str("session", session.ID()).Int("questions", len(questions)).Msg("quiz started")
	c.broadcastLocked(protocol.Encode(protocol.TypeQuizStart, strconv.Itoa(len(questions))))
	c.opts.Sink.OnSessionStateChange(session.State().String())

	// First question after a short countdown so clients can show a lobby.
	epoch := c.questionEpoch
	c.advanceTimer = c.opts.Clock.AfterFunc(c.opts.StartDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if epoch != c.questionEpoch || !c.session.Active() {
			return
		}
		c.sendNextQuestionLocked()
	})
	return nil
}

// SendNextQuestion advances to the next question immediately.
func (c *Coordinator) SendNextQuestion() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Active() {
		return domain.ErrQuizNotActive
	}
	c.sendNextQuestionLocked()
	return nil
}

// sendNextQuestionLocked performs the atomic question transition: cancel
// all scheduled work for the previous question, advance the cursor, start
// the new master timer, and arm the deadline safety task.
func (c *Coordinator) sendNextQuestionLocked() {
	c.cancelScheduledLocked()
	c.stopTimerLoopLocked()

	q, err := c.session.NextQuestion()
	if err != nil {
		c.endQuizLocked()
		return
	}

	log.Info().
		Int("question", c.session.CurrentIndex()+1).
		Int("total", c.session.TotalQuestions()).
		Msg("sending question")
	c.broadcastLocked(protocol.EncodeQuestion(q))
	c.opts.Sink.OnQuestionBroadcast(q, c.session.CurrentIndex(), c.session.TotalQuestions())

	c.startTimerLoopLocked(q.TimeLimitSec)
	c.armDeadlineLocked(time.Duration(q.TimeLimitSec)*time.Second + c.opts.AdvanceBuffer)
}

// armDeadlineLocked schedules the soft-deadline advance d from now,
// replacing any previous one. It fires even if nobody ever answers; pause
// suspends it and resume re-arms it from the frozen remaining value.
func (c *Coordinator) armDeadlineLocked(d time.Duration) {
	epoch := c.questionEpoch
	if c.deadlineTimer != nil {
		c.deadlineTimer.Stop()
	}
	c.deadlineTimer = c.opts.Clock.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if epoch != c.questionEpoch || !c.session.Active() {
			return
		}
		log.Info().Int("question", c.session.CurrentIndex()+1).Msg("question deadline reached")
		c.sendNextQuestionLocked()
	})
}

// RecordAnswer grades a submission for the current question, answers the
// submitting connection, broadcasts the refreshed leaderboard, and arms the
// auto-advance according to the configured policy. Stale, duplicate, and
// unregistered submissions come back as explicit negative results.
func (c *Coordinator) RecordAnswer(participantID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordAnswerLocked("", participantID, sub)
}

// SubmitAnswer is the connection-facing variant: the submitting connection
// receives its RESULT line before the leaderboard broadcast goes out.
func (c *Coordinator) SubmitAnswer(connID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.conns[connID]
	if !ok || entry.participantID == "" {
		return domain.AnswerResult{Message: "join before answering"}, domain.ErrParticipantNotFound
	}
	return c.recordAnswerLocked(connID, entry.participantID, sub)
}

func (c *Coordinator) recordAnswerLocked(connID, participantID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	res, err := c.session.RecordAnswer(participantID, sub, c.opts.Policy)
	if connID != "" {
		if entry, ok := c.conns[connID]; ok {
			entry.conn.Send(protocol.EncodeResult(res))
		}
	}
	if err != nil {
		log.Debug().Err(err).Str("participant", participantID).Int("question", sub.QuestionID).Msg("answer rejected")
		return res, err
	}

	log.Info().
		Str("participant", participantID).
		Int("question", sub.QuestionID).
		Bool("correct", res.Correct).
		Int("points", res.PointsEarned).
		Msg("answer recorded")

	c.broadcastLeaderboardLocked(protocol.TypeLeaderboard)
	c.armAutoAdvanceLocked()
	return res, nil
}

// armAutoAdvanceLocked applies exactly one advance policy.
func (c *Coordinator) armAutoAdvanceLocked() {
	switch c.opts.AdvancePolicy {
	case AdvanceWaitForAll:
		if c.session.AnsweredCount() < c.session.ParticipantCount() {
			return
		}
	case AdvanceAfterAnswer:
		// re-armed on every answer
	}

	epoch := c.questionEpoch
	if c.advanceTimer != nil {
		c.advanceTimer.Stop()
	}
	c.advanceTimer = c.opts.Clock.AfterFunc(c.opts.AdvanceDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if epoch != c.questionEpoch || !c.session.Active() {
			return
		}
		c.sendNextQuestionLocked()
	})
}

// Pause freezes the master timer; ticks keep reporting the frozen value.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer == nil {
		log.Warn().Msg("pause rejected: no active question timer")
		return domain.ErrQuizNotActive
	}
	frozen := c.timer.pause(c.opts.Clock.Now())
	// The deadline is wall-clock; a paused question must not force-advance.
	if c.deadlineTimer != nil {
		c.deadlineTimer.Stop()
		c.deadlineTimer = nil
	}
	c.broadcastLocked(protocol.Encode(protocol.TypeTimerCtl, protocol.TimerCtlPause, strconv.Itoa(frozen)))
	c.opts.Sink.OnTimerControl(protocol.TimerCtlPause, frozen)
	log.Info().Int("remaining", frozen).Msg("timer paused")
	return nil
}

// Resume continues the countdown from the frozen value.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer == nil {
		log.Warn().Msg("resume rejected: no active question timer")
		return domain.ErrQuizNotActive
	}
	remaining := c.timer.resume(c.opts.Clock.Now())
	c.armDeadlineLocked(time.Duration(remaining)*time.Second + c.opts.AdvanceBuffer)
	c.broadcastLocked(protocol.Encode(protocol.TypeTimerCtl, protocol.TimerCtlResume, strconv.Itoa(remaining)))
	c.opts.Sink.OnTimerControl(protocol.TimerCtlResume, remaining)
	log.Info().Int("remaining", remaining).Msg("timer resumed")
	return nil
}

// Extend grows the current question's time limit. Works both paused and
// running; the extension is never lost on resume.
func (c *Coordinator) Extend(seconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer == nil {
		log.Warn().Msg("extend rejected: no active question timer")
		return domain.ErrQuizNotActive
	}
	c.timer.extend(seconds)
	if !c.timer.paused {
		remaining := c.timer.remaining(c.opts.Clock.Now())
		c.armDeadlineLocked(time.Duration(remaining)*time.Second + c.opts.AdvanceBuffer)
	}
	c.broadcastLocked(protocol.Encode(protocol.TypeTimerCtl, protocol.TimerCtlExtend, strconv.Itoa(seconds)))
	c.opts.Sink.OnTimerControl(protocol.TimerCtlExtend, seconds)
	log.Info().Int("seconds", seconds).Msg("timer extended")
	return nil
}

// Skip abandons the current question and moves on. Answers already received
// keep their scores; pending auto-advance and deadline tasks are cancelled.
func (c *Coordinator) Skip() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Active() {
		return domain.ErrQuizNotActive
	}
	log.Info().Int("question", c.session.CurrentIndex()+1).Msg("skipping question")
	c.broadcastLocked(protocol.Encode(protocol.TypeTimerCtl, protocol.TimerCtlSkip, ""))
	c.opts.Sink.OnTimerControl(protocol.TimerCtlSkip, 0)
	c.sendNextQuestionLocked()
	return nil
}

// ForceNext is the administrative "next question now".
func (c *Coordinator) ForceNext() error {
	return c.SendNextQuestion()
}

// EndQuiz finishes the run. Idempotent; the final leaderboard is broadcast
// exactly once per run.
func (c *Coordinator) EndQuiz() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Active() {
		log.Debug().Msg("end ignored: no quiz in progress")
		return nil
	}
	c.endQuizLocked()
	return nil
}

func (c *Coordinator) endQuizLocked() {
	c.cancelScheduledLocked()
	c.stopTimerLoopLocked()
	c.session.End()

	entries := c.session.Leaderboard()
	c.broadcastLocked(protocol.EncodeRaw(protocol.TypeQuizEnd, protocol.LeaderboardPayload(entries)))
	c.opts.Sink.OnSessionStateChange(c.session.State().String())
	c.opts.Sink.OnQuizEnd(entries, c.session.Analytics())
	log.Info().Str("session", c.session.ID()).Int("participants", len(entries)).Msg("quiz ended")
	log.Info().Msg(c.session.ResultsSummary())
}

// Broadcast sends one framed message to every live connection.
func (c *Coordinator) Broadcast(typ string, fields ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastLocked(protocol.Encode(typ, fields...))
}

// BroadcastChat relays a chat line prefixed with the sender's name.
func (c *Coordinator) BroadcastChat(displayName, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastLocked(protocol.Encode(protocol.TypeMessage, displayName+": "+text))
}

// Leaderboard returns the current ranked scoreboard.
func (c *Coordinator) Leaderboard() []domain.LeaderboardEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Leaderboard()
}

// Analytics returns the per-question aggregation for the current session.
func (c *Coordinator) Analytics() []domain.QuestionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Analytics()
}

// Status reports the coordinator state for administrative surfaces.
func (c *Coordinator) Status() (state string, questionIndex, totalQuestions, connected int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state = c.session.State().String()
	if c.timer != nil && c.timer.paused {
		state = "paused"
	}
	return state, c.session.CurrentIndex(), c.session.TotalQuestions(), len(c.conns)
}

// Stop ends any running quiz, closes every connection, and cancels all
// scheduled work. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.session.Active() {
		c.endQuizLocked()
	}
	c.cancelScheduledLocked()
	c.stopTimerLoopLocked()
	conns := make([]Conn, 0, len(c.conns))
	for _, entry := range c.conns {
		conns = append(conns, entry.conn)
	}
	c.conns = make(map[string]*connEntry)
	c.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	log.Info().Msg("coordinator stopped")
}

// broadcastLocked fans one line out to a snapshot of the connection set.
// Emission order is broadcast order because every emission happens under
// the coordinator lock and Send only enqueues.
func (c *Coordinator) broadcastLocked(line string) {
	for _, entry := range c.conns {
		entry.conn.Send(line)
	}
}

func (c *Coordinator) broadcastLeaderboardLocked(typ string) {
	entries := c.session.Leaderboard()
	c.broadcastLocked(protocol.EncodeRaw(typ, protocol.LeaderboardPayload(entries)))
	c.opts.Sink.OnLeaderboardUpdate(entries)
}

func (c *Coordinator) broadcastStudentCountLocked() {
	joined := 0
	for _, entry := range c.conns {
		if entry.participantID != "" {
			joined++
		}
	}
	c.broadcastLocked(protocol.Encode(protocol.TypeMessage, fmt.Sprintf("Students online: %d", joined)))
}

// cancelScheduledLocked invalidates every scheduled advance for the current
// question. Callbacks that already fired see a stale epoch and do nothing.
func (c *Coordinator) cancelScheduledLocked() {
	c.questionEpoch++
	if c.advanceTimer != nil {
		c.advanceTimer.Stop()
		c.advanceTimer = nil
	}
	if c.deadlineTimer != nil {
		c.deadlineTimer.Stop()
		c.deadlineTimer = nil
	}
}

// startTimerLoopLocked starts the 1s broadcast loop for a new question.
// Any previous loop must already be stopped; the two never overlap.
func (c *Coordinator) startTimerLoopLocked(limitSec int) {
	c.timer = newTimerState(limitSec, c.opts.Clock.Now())
	stop := make(chan struct{})
	c.timerStop = stop

	// Immediate first tick so clients see the full value right away.
	c.broadcastTickLocked()

	ticker := c.opts.Clock.NewTicker(c.opts.TickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				c.mu.Lock()
				select {
				case <-stop:
					// Stopped while we waited for the lock.
					c.mu.Unlock()
					return
				default:
				}
				c.broadcastTickLocked()
				c.mu.Unlock()
			}
		}
	}()
}

func (c *Coordinator) stopTimerLoopLocked() {
	if c.timerStop != nil {
		close(c.timerStop)
		c.timerStop = nil
	}
	c.timer = nil
}

func (c *Coordinator) broadcastTickLocked() {
	if c.timer == nil {
		return
	}
	snap := c.timer.snapshot(c.opts.Clock.Now())
	c.broadcastLocked(protocol.EncodeTimerSync(snap))
	c.opts.Sink.OnTimerTick(snap, c.session.AnsweredCount(), len(c.conns))
}
