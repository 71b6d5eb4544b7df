// Package speech - composes and rate-limits spoken descriptions of tracked objects.
package speech

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/go-assist/tracker"
)

// Phrasebook holds every user-facing phrase in one language.
type Phrasebook struct {
	// Clause formats one object from direction, class, distance and status, in that order.
	Clause string
	// Separator joins clauses.
	Separator string
	// ListSeparator joins labels in a cloud announcement.
	ListSeparator string

	VeryNear string
	Near     string
	Far      string

	Moving     string
	Stationary string

	UnknownDirection string
	UnknownObject    string
	Left             string
	Right            string
	Up               string
	Down             string

	NotIdentifiable string
	DetectionError  string
	// Detected formats the labels found by the cloud fallback.
	Detected string
}

// English returns the English phrasebook.
func English() Phrasebook {
	return Phrasebook{
		Clause:           "%s %s %s, %s",
		Separator:        ". ",
		ListSeparator:    ", ",
		VeryNear:         "very near",
		Near:             "near",
		Far:              "far",
		Moving:           "moving",
		Stationary:       "stationary",
		UnknownDirection: "unknown",
		UnknownObject:    "unknown object",
		Left:             "left",
		Right:            "right",
		Up:               "up",
		Down:             "down",
		NotIdentifiable:  "Unable to identify the object.",
		DetectionError:   "Error while processing the object.",
		Detected:         "Detected: %s",
	}
}

// Vietnamese returns the Vietnamese phrasebook.
func Vietnamese() Phrasebook {
	return Phrasebook{
		Clause:           "Ở %s có %s %s, đang %s",
		Separator:        ". ",
		ListSeparator:    ", ",
		VeryNear:         "rất gần",
		Near:             "gần",
		Far:              "xa",
		Moving:           "di chuyển",
		Stationary:       "đứng yên",
		UnknownDirection: "không rõ",
		UnknownObject:    "vật không rõ",
		Left:             "bên trái",
		Right:            "bên phải",
		Up:               "phía trên",
		Down:             "phía dưới",
		NotIdentifiable:  "Không thể xác định vật thể.",
		DetectionError:   "Lỗi khi xử lý vật thể.",
		Detected:         "Phát hiện: %s",
	}
}

// PhrasebookFor returns the phrasebook for a language tag, English when unknown.
func PhrasebookFor(language string) Phrasebook {
	switch strings.ToLower(language) {
	case "vi", "vi-vn", "vietnamese":
		return Vietnamese()
	default:
		return English()
	}
}

// Direction names a tracker direction.
func (p Phrasebook) Direction(d tracker.Direction) string {
	switch d {
	case tracker.DirectionLeft:
		return p.Left
	case tracker.DirectionRight:
		return p.Right
	case tracker.DirectionUp:
		return p.Up
	case tracker.DirectionDown:
		return p.Down
	default:
		return p.UnknownDirection
	}
}

// Status names a tracker status.
func (p Phrasebook) Status(s tracker.Status) string {
	if s == tracker.StatusMoving {
		return p.Moving
	}
	return p.Stationary
}

// Distance names a distance tier.
func (p Phrasebook) Distance(d Distance) string {
	switch d {
	case DistanceVeryNear:
		return p.VeryNear
	case DistanceNear:
		return p.Near
	default:
		return p.Far
	}
}

// DetectedLabels formats the cloud announcement.
func (p Phrasebook) DetectedLabels(labels []string) string {
	return fmt.Sprintf(p.Detected, strings.Join(labels, p.ListSeparator))
}
