package model

import (
	"encoding/json"
	"fmt"
)

// ViewedEvent announces that a video was played. It is what the streaming
// service publishes on the viewed exchange:
//
//	{"video":{"id":"<video id>"}}
type ViewedEvent struct {
	Video VideoRef `json:"video"`
}

// VideoRef identifies a video by an opaque ID owned by the metadata service.
type VideoRef struct {
	ID string `json:"id"`
}

// NewViewedEvent returns the event for a single playback of videoID.
func NewViewedEvent(videoID string) ViewedEvent {
	return ViewedEvent{Video: VideoRef{ID: videoID}}
}

// VideoID is shorthand for e.Video.ID.
func (e ViewedEvent) VideoID() string { return e.Video.ID }

// Marshal encodes the event in its wire form.
func (e ViewedEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeViewedEvent parses a wire payload and validates it.
func DecodeViewedEvent(data []byte) (ViewedEvent, error) {
	var e ViewedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ViewedEvent{}, fmt.Errorf("decode viewed event: %w", err)
	}
	if err := ValidateViewedEvent(e); err != nil {
		return ViewedEvent{}, err
	}
	return e, nil
}
