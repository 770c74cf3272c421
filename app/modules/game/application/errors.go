package gameservice

// Rejection reasons surfaced to the UI. Every denied operation carries one of
// these so the player is told why, never silently dropped.
const (
	ReasonNotHost        = "only the host can do that"
	ReasonCannotBuzzNow  = "cannot buzz now"
	ReasonNoSong         = "no song in progress"
	ReasonAlreadyBuzzed  = "you already buzzed this round"
	ReasonSomeoneBuzzed  = "someone already buzzed"
	ReasonNoWinningBuzz  = "no winning buzz to validate"
	ReasonCannotValidate = "cannot validate now"
	ReasonCannotReveal   = "cannot reveal now"
	ReasonCannotPause    = "cannot pause now"
	ReasonNothingToDo    = "nothing to resume"
	ReasonStoreUnhealthy = "operation failed, please try again"
)

// GameFailure is the typed rejection payload.
type GameFailure struct {
	Reason string `json:"reason"`
}

// GameOperationResult is the outcome of one orchestrator operation. Exactly
// one of Success or Failure is set; infrastructure errors travel on the
// second return value instead.
type GameOperationResult struct {
	Success any
	Failure *GameFailure
}

func failure(reason string) GameOperationResult {
	return GameOperationResult{Failure: &GameFailure{Reason: reason}}
}

func success(payload any) GameOperationResult {
	return GameOperationResult{Success: payload}
}
