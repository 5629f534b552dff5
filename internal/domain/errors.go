package domain

import "errors"

var (
	// ErrQuizActive is returned when a quiz start is requested mid-run.
	ErrQuizActive = errors.New("quiz already in progress")
	// ErrQuizNotActive is returned for operations that require a running quiz.
	ErrQuizNotActive = errors.New("no quiz in progress")
	// ErrNoMoreQuestions signals the question list is exhausted.
	ErrNoMoreQuestions = errors.New("no more questions")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrStaleQuestion is returned for answers to a question that is no longer current.
	ErrStaleQuestion = errors.New("invalid question")
	// ErrDuplicateAnswer is returned for a second answer to the same question.
	ErrDuplicateAnswer = errors.New("answer already recorded")
	// ErrQuestionSetNotFound indicates the question set could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrInvalidQuestion is returned when a question fails validation.
	ErrInvalidQuestion = errors.New("invalid question definition")
)
