package models

import "github.com/compounding/growth-backend/internal/growth"

// Bounds of the configuration surface
const (
	MinTotalDays = 30
	MaxTotalDays = 730
	MinDailyRate = 0.001
	MaxDailyRate = 0.05
)

// ConfigRequest represents a request to reconfigure the simulation
type ConfigRequest struct {
	TotalDays int     `json:"total_days" validate:"min=30,max=730"`
	DailyRate float64 `json:"daily_rate" validate:"gte=0.001,lte=0.05"`
}

// ProjectionRequest holds the query of a closed-form projection.
// StartValue defaults to 1 when omitted.
type ProjectionRequest struct {
	TotalDays  int     `validate:"min=30,max=730"`
	DailyRate  float64 `validate:"gte=0.001,lte=0.05"`
	StartValue float64 `validate:"gt=0"`
}

// ProjectionResponse represents a closed-form trajectory
type ProjectionResponse struct {
	Config        growth.Config  `json:"config"`
	FinalValue    float64        `json:"final_value"`
	GrowthPercent float64        `json:"growth_percent"`
	Points        []growth.Point `json:"points"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
