package game

// ParticipantView is the public part of a Participant. Private cards are
// never included.
type ParticipantView struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Seat     int    `json:"seat"`
	Status   Status `json:"status"`
	Folded   bool   `json:"folded"`
	Invested int    `json:"invested"`
}

// PublicState is the snapshot broadcast to operators and viewers.
type PublicState struct {
	SessionID         string            `json:"sessionId"`
	SessionName       string            `json:"sessionName"`
	HandID            string            `json:"handId,omitempty"`
	TotalRounds       int               `json:"totalRounds"`
	CurrentRound      int               `json:"currentRound"`
	IsActive          bool              `json:"isActive"`
	Phase             Phase             `json:"phase"`
	Pot               int               `json:"pot"`
	CurrentStake      int               `json:"currentStake"`
	Boot              int               `json:"boot"`
	ActivePlayerIndex int               `json:"activePlayerIndex"`
	ActivePlayerID    string            `json:"activePlayerId,omitempty"`
	Players           []Player          `json:"players"`
	GamePlayers       []ParticipantView `json:"gamePlayers"`
	Log               []string          `json:"log"`
	SideShowRequest   *SideShowRequest  `json:"sideShowRequest,omitempty"`
	ShowRequest       *ShowRequest      `json:"showRequest,omitempty"`
}

// PublicState returns a copy of the engine state with private hands removed.
func (e *Engine) PublicState() PublicState {
	s := PublicState{
		SessionID:         e.cfg.SessionID,
		SessionName:       e.cfg.Name,
		HandID:            e.handID,
		TotalRounds:       e.cfg.TotalRounds,
		CurrentRound:      e.currentRound,
		IsActive:          e.active,
		Phase:             e.phase,
		Pot:               e.pot,
		CurrentStake:      e.stake,
		Boot:              e.cfg.Boot,
		ActivePlayerIndex: e.activeIndex,
		ActivePlayerID:    e.ActivePlayerID(),
		Players:           e.Players(),
		GamePlayers:       make([]ParticipantView, len(e.participants)),
		Log:               append([]string(nil), e.log...),
	}
	for i, p := range e.participants {
		s.GamePlayers[i] = ParticipantView{
			PlayerID: p.PlayerID,
			Name:     p.Name,
			Seat:     p.Seat,
			Status:   p.Status,
			Folded:   p.Folded,
			Invested: p.Invested,
		}
	}
	if e.sideShow != nil {
		req := *e.sideShow
		s.SideShowRequest = &req
	}
	if e.show != nil {
		req := *e.show
		s.ShowRequest = &req
	}
	return s
}
