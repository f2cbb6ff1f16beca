package service

import "errors"

// SignupPhase is the observable state of a signup flow. The transition table
// is pure so the whole machine can be exercised without a store or mailer.
type SignupPhase string

const (
	PhaseIdle              SignupPhase = "idle"
	PhaseEmailSending      SignupPhase = "email_sending"
	PhaseEmailSent         SignupPhase = "email_sent"
	PhaseEmailVerifying    SignupPhase = "email_verifying"
	PhaseEmailVerified     SignupPhase = "email_verified"
	PhaseProfileCompleting SignupPhase = "profile_completing"
	PhaseCompleted         SignupPhase = "completed"
	PhaseFailed            SignupPhase = "failed"
	PhaseCanceled          SignupPhase = "canceled"
)

// SignupEvent drives the machine forward.
type SignupEvent string

const (
	EventStart           SignupEvent = "start"
	EventEmailSent       SignupEvent = "email_sent"
	EventVerifyEmail     SignupEvent = "verify_email"
	EventEmailVerified   SignupEvent = "email_verified"
	EventCompleteProfile SignupEvent = "complete_profile"
	EventProfileDone     SignupEvent = "profile_done"
	EventFail            SignupEvent = "fail"
	EventCancel          SignupEvent = "cancel"
	EventRetry           SignupEvent = "retry"
)

// ErrInvalidTransition rejects an event the current phase cannot accept.
var ErrInvalidTransition = errors.New("ident: invalid signup transition")

// nextPhase is the transition function. EventFail is legal from every
// in-flight phase; cancel only from the phases where a user still holds an
// unredeemed flow.
func nextPhase(phase SignupPhase, event SignupEvent) (SignupPhase, error) {
	if event == EventFail {
		switch phase {
		case PhaseEmailSending, PhaseEmailSent, PhaseEmailVerifying,
			PhaseEmailVerified, PhaseProfileCompleting:
			return PhaseFailed, nil
		}
		return phase, ErrInvalidTransition
	}

	switch phase {
	case PhaseIdle:
		if event == EventStart {
			return PhaseEmailSending, nil
		}
	case PhaseEmailSending:
		if event == EventEmailSent {
			return PhaseEmailSent, nil
		}
	case PhaseEmailSent:
		switch event {
		case EventVerifyEmail:
			return PhaseEmailVerifying, nil
		case EventRetry:
			return PhaseEmailSending, nil
		case EventCancel:
			return PhaseCanceled, nil
		}
	case PhaseEmailVerifying:
		switch event {
		case EventEmailVerified:
			return PhaseEmailVerified, nil
		case EventCancel:
			return PhaseCanceled, nil
		}
	case PhaseEmailVerified:
		if event == EventCompleteProfile {
			return PhaseProfileCompleting, nil
		}
	case PhaseProfileCompleting:
		if event == EventProfileDone {
			return PhaseCompleted, nil
		}
	case PhaseFailed:
		switch event {
		case EventRetry:
			return PhaseEmailSending, nil
		case EventCancel:
			return PhaseCanceled, nil
		}
	}
	return phase, ErrInvalidTransition
}
