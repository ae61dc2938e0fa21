package model

type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"serviceName,omitempty"`
	AIMode      string `json:"aiMode"`
	Storage     bool   `json:"storage"`
}

type UploadSignRequest struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"contentType"`
}

type UploadSignResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresAt int64  `json:"expiresAt"`
}

// MinutesJSONRequest is the application/json form of POST /minutes.
type MinutesJSONRequest struct {
	S3Keys     []string `json:"s3Keys"`
	Transcript *string  `json:"transcript,omitempty"`
}

type MinutesTimings struct {
	Transcription int64 `json:"transcription"`
	Style         int64 `json:"style"`
	Synthesis     int64 `json:"synthesis"`
	Total         int64 `json:"total"`
}

type MinutesResponse struct {
	Transcript      string         `json:"transcript"`
	Summary         string         `json:"summary"`
	Minutes         string         `json:"minutes"`
	StyleGuidelines string         `json:"styleGuidelines"`
	UsedAI          bool           `json:"usedAI"`
	TimingsMS       MinutesTimings `json:"timingsMs"`
}

type ExportRequest struct {
	Format     string `json:"format" validate:"required,oneof=html txt doc docx"`
	Title      string `json:"title" validate:"max=200"`
	Summary    string `json:"summary"`
	Minutes    string `json:"minutes"`
	Transcript string `json:"transcript"`
}
