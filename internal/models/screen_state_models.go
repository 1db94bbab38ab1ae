package models

import "time"

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
	PhaseFailed  Phase = "failed"
)

type FailureKind string

const (
	FailureInput FailureKind = "input"
	FailureFetch FailureKind = "fetch"
)

// AnalysisState is the single view state of the analysis screen. Build it
// with the constructors below; Result is the chart currently on screen and
// survives Loading and Failed so the chart does not flicker.
type AnalysisState struct {
	Phase     Phase            `json:"phase"`
	Seq       uint64           `json:"seq"`
	Username  string           `json:"username,omitempty"`
	Result    *SentimentResult `json:"result,omitempty"`
	Source    ResultSource     `json:"source,omitempty"`
	Message   string           `json:"message,omitempty"`
	Failure   FailureKind      `json:"failure,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

func IdleAnalysis() AnalysisState {
	return AnalysisState{Phase: PhaseIdle}
}

func LoadingAnalysis(seq uint64, username string, prev AnalysisState) AnalysisState {
	return AnalysisState{
		Phase:    PhaseLoading,
		Seq:      seq,
		Username: username,
		Result:   prev.Result,
		Source:   prev.Source,
	}
}

// LoadedAnalysis carries an optional notice, e.g. when sample data replaced
// a failed fetch.
func LoadedAnalysis(seq uint64, username string, result *SentimentResult, source ResultSource, notice string) AnalysisState {
	return AnalysisState{
		Phase:    PhaseLoaded,
		Seq:      seq,
		Username: username,
		Result:   result,
		Source:   source,
		Message:  notice,
	}
}

// FailedAnalysis keeps the previous chart. A nil expiresAt means the failure
// stays until the next action.
func FailedAnalysis(seq uint64, username string, kind FailureKind, message string, prev AnalysisState, expiresAt *time.Time) AnalysisState {
	return AnalysisState{
		Phase:     PhaseFailed,
		Seq:       seq,
		Username:  username,
		Result:    prev.Result,
		Source:    prev.Source,
		Message:   message,
		Failure:   kind,
		ExpiresAt: expiresAt,
	}
}

// WithNotice shows message until expiresAt without changing the phase.
func (s AnalysisState) WithNotice(message string, expiresAt *time.Time) AnalysisState {
	s.Message = message
	s.ExpiresAt = expiresAt
	return s
}

func (s AnalysisState) IsLoading() bool {
	return s.Phase == PhaseLoading
}

// Resolve drops an expired failure, restoring the chart underneath it. An
// expired notice on any other phase is cleared and the phase kept.
func (s AnalysisState) Resolve(now time.Time) AnalysisState {
	if s.ExpiresAt == nil || now.Before(*s.ExpiresAt) {
		return s
	}
	if s.Phase != PhaseFailed {
		s.Message = ""
		s.ExpiresAt = nil
		return s
	}
	if s.Result == nil {
		idle := IdleAnalysis()
		idle.Seq = s.Seq
		return idle
	}
	return LoadedAnalysis(s.Seq, s.Username, s.Result, s.Source, "")
}

type LandingState struct {
	Samples   []SentimentSample `json:"samples"`
	Jittering bool              `json:"jittering"`
}

// Session is everything one browser sees across both screens.
type Session struct {
	ID        string        `json:"id"`
	Landing   LandingState  `json:"landing"`
	Analysis  AnalysisState `json:"analysis"`
	LastSeq   uint64        `json:"last_seq"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NextSeq issues a new request sequence number.
func (s *Session) NextSeq() uint64 {
	s.LastSeq++
	return s.LastSeq
}
