package protocol

// Message types exchanged between coordinator and participants.
const (
	TypeConnect     = "CONNECT"
	TypeDisconnect  = "DISCONNECT"
	TypeStudentJoin = "STUDENT_JOIN"
	TypeQuizStart   = "QUIZ_START"
	TypeQuizEnd     = "QUIZ_END"
	TypeQuestion    = "QUESTION"
	TypeAnswer      = "ANSWER"
	TypeScoreUpdate = "SCORE_UPDATE"
	TypeLeaderboard = "LEADERBOARD"
	TypeTimeUpdate  = "TIME_UPDATE"
	TypeTimerSync   = "TIMER_SYNC"
	TypeTimerCtl    = "TIMER_CONTROL"
	TypeResult      = "RESULT"
	TypeMessage     = "MESSAGE"
	TypeError       = "ERROR"
	TypeAck         = "ACK"
)

// Timer control verbs carried in TIMER_CONTROL payloads.
const (
	TimerCtlPause  = "pause"
	TimerCtlResume = "resume"
	TimerCtlExtend = "extend"
	TimerCtlSkip   = "skip"
)

// DefaultPort is the well-known listen port for the quiz protocol.
const DefaultPort = 8888
