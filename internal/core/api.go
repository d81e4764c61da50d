package core

import "time"

// Request types

type InboundEnvelope struct {
	Type string       `json:"t" validate:"required,oneof=fen move gameStart gameEnd"`
	Data InboundState `json:"d"`
}

// InboundState is the payload of a position frame. Ply is optional; when it
// is absent the half-move index is derived from the FEN counters.
type InboundState struct {
	FEN string `json:"fen" validate:"omitempty,max=100"`
	Ply *int   `json:"ply,omitempty" validate:"omitempty,min=-1"`
}

// PlyIndex returns the frame's ply, or -1 when the frame carries none
func (s InboundState) PlyIndex() int {
	if s.Ply == nil {
		return -1
	}
	return *s.Ply
}

type OutboundEnvelope struct {
	Type string         `json:"t"`
	Data map[string]any `json:"d"`
}

// Response types

type StateResponse struct {
	GameID      string `json:"gameId"`
	FEN         string `json:"fen"`
	Ply         int    `json:"ply"`
	MyColor     string `json:"myColor"`
	Turn        string `json:"turn"`
	MyTurn      bool   `json:"myTurn"`
	Phase       string `json:"phase"`
	Engine      string `json:"engine"`
	Generation  uint64 `json:"generation"`
	QueueDepth  int    `json:"queueDepth"`
	Head        string `json:"head,omitempty"`
	Halted      bool   `json:"halted"`
	HaltReason  string `json:"haltReason,omitempty"`
	LastMove    string `json:"lastMove,omitempty"`
	Consecutive int    `json:"consecutiveFailures"`
}

type SearchResponse struct {
	Generation uint64 `json:"generation"`
}

type GameResponse struct {
	GameID     string     `json:"gameId"`
	InitialFEN string     `json:"initialFen"`
	MyColor    string     `json:"myColor"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	EndReason  string     `json:"endReason,omitempty"`
}

type DeliveryResponse struct {
	EntryID  string    `json:"entryId"`
	Ply      int       `json:"ply"`
	Move     string    `json:"move"`
	FEN      string    `json:"fen"`
	Status   string    `json:"status"`
	Via      string    `json:"via,omitempty"`
	Retries  int       `json:"retries"`
	Error    string    `json:"error,omitempty"`
	Finished time.Time `json:"finishedAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
