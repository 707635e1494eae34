package api

// feedbackRequest is the body for POST /api/v1/sessions/:id/feedback.
type feedbackRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

// insightStatusRequest is the body for POST /api/v1/insights/:id/status.
type insightStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// clientMessage is a message from a websocket client.
type clientMessage struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id,omitempty"`
}
