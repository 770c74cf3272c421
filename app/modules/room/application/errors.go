package roomservice

// Rejection reasons for room lifecycle operations.
const (
	ReasonRoomNotFound    = "room not found"
	ReasonRoomEnded       = "room has ended"
	ReasonInvalidCode     = "invalid join code"
	ReasonInvalidNickname = "nickname must be 1-20 characters"
	ReasonNicknameTaken   = "nickname already taken in this room"
	ReasonRoomFull        = "room is full"
	ReasonNotInRoom       = "player is not in this room"
	ReasonCodeExhausted   = "could not allocate a join code"
)

// RoomFailure is the typed rejection payload.
type RoomFailure struct {
	Reason string `json:"reason"`
}

// RoomOperationResult is the outcome of one room operation. Exactly one of
// Success or Failure is set; infrastructure errors travel on the second
// return value.
type RoomOperationResult struct {
	Success any
	Failure *RoomFailure
}

func failure(reason string) RoomOperationResult {
	return RoomOperationResult{Failure: &RoomFailure{Reason: reason}}
}

func success(payload any) RoomOperationResult {
	return RoomOperationResult{Success: payload}
}
