package dto

// SuperposeRequest asks for a superpose session. With Wait the handler
// returns once the session is over and its image has been published.
type SuperposeRequest struct {
	RequestID string `json:"request_id"`
	Wait      bool   `json:"wait"`
}

type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}
