package sharedtypes

// RoomID identifies one quiz session.
type RoomID string

// PlayerID identifies one participant, unique across rooms.
type PlayerID string

// SongID identifies a song in the catalog and, by extension, one round.
type SongID string

// Score is a player's accumulated point total. Never decremented.
type Score int
