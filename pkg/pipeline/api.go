package pipeline

import "time"

// Settings are the configuration values shown to the settings collaborator
type Settings struct {
	WatchFolder      string   `json:"watch_folder"`
	TemplatePath     string   `json:"template_path"`
	OutputFolder     string   `json:"output_folder"`
	PrintEnabled     bool     `json:"print_enabled"`
	PrinterName      string   `json:"printer_name"`
	Copies           int      `json:"copies"`
	SupportedFormats []string `json:"supported_formats"`
	Position         string   `json:"position"`
	Opacity          int      `json:"opacity"`
}

// StatusResponse is returned by GET /v1/status, POST /v1/start and POST /v1/stop
type StatusResponse struct {
	State      PipelineState    `json:"state"`
	Settings   Settings         `json:"settings"`
	QueueDepth int              `json:"queue_depth"`
	Settling   []CandidateFile  `json:"settling"`
	Recent     []ProcessedPhoto `json:"recent"`
	LastEvent  int64            `json:"last_event"`
}

// StatusEvent is one sequenced status line
type StatusEvent struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// EventsResponse is returned by GET /v1/events
type EventsResponse struct {
	Events []StatusEvent `json:"events"`
}

// PrintersResponse is returned by GET /v1/printers
type PrintersResponse struct {
	Printers []string `json:"printers"` // DefaultDestinationLabel first
}

// ReprocessRequest is the body of POST /v1/reprocess
type ReprocessRequest struct {
	Path string `json:"path"` // absolute, or a file name inside the watch folder
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"` // set for configuration errors
}
