package types

import (
	"image"
	"time"
)

// Labels is the closed set of emotions the classifier scores, in output order.
var Labels = [...]string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"}

// NumLabels is the length of every probability vector returned by a classifier.
const NumLabels = len(Labels)

// TimeLayout formats the Time column of the workbook
const TimeLayout = "2006-01-02 15:04:05"

// FaceRegion is a candidate face inside a frame. It only lives for one iteration.
type FaceRegion = image.Rectangle

// EmotionSample is one classifier decision for one face
type EmotionSample struct {
	Time       time.Time
	Label      string
	Confidence float64
}

// LogRow is an EmotionSample that made it through the sampling gate
type LogRow struct {
	Time       time.Time
	Emotion    string
	Confidence float64
}

// Row converts an accepted sample into a persisted row.
func (s EmotionSample) Row() LogRow {
	return LogRow{Time: s.Time, Emotion: s.Label, Confidence: s.Confidence}
}

// ValidLabel reports whether l belongs to Labels.
func ValidLabel(l string) bool {
	for _, v := range Labels {
		if v == l {
			return true
		}
	}
	return false
}
