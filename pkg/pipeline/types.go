package pipeline

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// WatchConfig describes which folder is observed and how stability is judged
type WatchConfig struct {
	Dir            string        `json:"dir"`
	Extensions     []string      `json:"extensions"`      // accepted, case-insensitive, with leading dot
	SettleInterval time.Duration `json:"settle_interval"` // size/mtime must be unchanged this long
	PollInterval   time.Duration `json:"poll_interval"`
}

// Accepts reports whether path carries one of the configured extensions
func (c WatchConfig) Accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, e := range c.Extensions {
		if NormalizeExtension(e) == ext {
			return true
		}
	}
	return false
}

// NormalizeExtension lowercases ext and ensures a leading dot
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// AnchorKind enumerates template placements
type AnchorKind string

// AnchorKind constants
const (
	AnchorCenter      AnchorKind = "center"
	AnchorTopLeft     AnchorKind = "top-left"
	AnchorTopRight    AnchorKind = "top-right"
	AnchorBottomLeft  AnchorKind = "bottom-left"
	AnchorBottomRight AnchorKind = "bottom-right"
	AnchorOffset      AnchorKind = "offset"
)

// Anchor is where the template is aligned onto the source.
// X and Y are only meaningful for AnchorOffset.
type Anchor struct {
	Kind AnchorKind `json:"kind"`
	X    int        `json:"x,omitempty"`
	Y    int        `json:"y,omitempty"`
}

// String returns the form accepted by ParseAnchor
func (a Anchor) String() string {
	if a.Kind == AnchorOffset {
		return fmt.Sprintf("%d,%d", a.X, a.Y)
	}
	return string(a.Kind)
}

// ParseAnchor accepts a named anchor ("center", "top-left", "top_left", ...)
// or an explicit "x,y" pixel offset.
func ParseAnchor(s string) (Anchor, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "_", "-")
	switch AnchorKind(v) {
	case "":
		return Anchor{Kind: AnchorCenter}, nil
	case AnchorCenter, AnchorTopLeft, AnchorTopRight, AnchorBottomLeft, AnchorBottomRight:
		return Anchor{Kind: AnchorKind(v)}, nil
	}

	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return Anchor{}, fmt.Errorf("invalid anchor %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Anchor{}, fmt.Errorf("invalid anchor x offset %q: %w", parts[0], err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Anchor{}, fmt.Errorf("invalid anchor y offset %q: %w", parts[1], err)
	}
	return Anchor{Kind: AnchorOffset, X: x, Y: y}, nil
}

// TemplateSpec describes the overlay applied to every photo
type TemplateSpec struct {
	Path    string `json:"path"`
	Anchor  Anchor `json:"anchor"`
	Opacity int    `json:"opacity"` // percent, 0-100
}

// ClampOpacity limits a percentage to [0,100]
func ClampOpacity(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// CandidateFile is a file tracked by the watcher until it stops changing
type CandidateFile struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	FirstSeen   time.Time `json:"first_seen"`
	StableSince time.Time `json:"stable_since"` // last time size/mtime changed
	StableCount int       `json:"stable_count"` // consecutive unchanged polls
}

// ProcessedPhoto is the immutable outcome of one compositing attempt
type ProcessedPhoto struct {
	RunID      string    `json:"run_id"`
	SourcePath string    `json:"source_path"`
	OutputPath string    `json:"output_path,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// PrintJob is a fire-and-forget print submission
type PrintJob struct {
	Destination string `json:"destination"` // "" means system default
	Path        string `json:"path"`
	Copies      int    `json:"copies"`
}

// PipelineState is owned by the coordinator
type PipelineState string

// PipelineState constants
const (
	StateStopped  PipelineState = "stopped"
	StateStarting PipelineState = "starting"
	StateRunning  PipelineState = "running"
	StateStopping PipelineState = "stopping"
)

// StatusSink receives one human-readable line per pipeline event
type StatusSink func(message string)

// DefaultDestinationLabel is how the empty destination is shown to users
const DefaultDestinationLabel = "default"

// DestinationFromLabel maps the display label back to the empty destination
func DestinationFromLabel(label string) string {
	v := strings.TrimSpace(label)
	if strings.EqualFold(v, DefaultDestinationLabel) {
		return ""
	}
	return v
}

// DestinationLabel maps the empty destination to its display label
func DestinationLabel(dest string) string {
	if dest == "" {
		return DefaultDestinationLabel
	}
	return dest
}

// DefaultExtensions lists the formats the compositor can decode
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tiff"}
