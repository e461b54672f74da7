// Package media describes the playable inputs of a composition: video clips and
// still images, with the duration and ordering metadata the timeline needs.
package media

import (
	"image"
	"time"
)

// Kind identifies the variant of a Source.
type Kind string

const (
	// KindClip is a video clip with its own natural duration.
	KindClip Kind = "clip"
	// KindStill is a still image that is synthesized into a short clip.
	KindStill Kind = "still"
)

// IsValid returns true if the kind is one of the known variants.
func (k Kind) IsValid() bool {
	return k == KindClip || k == KindStill
}

// DistantPast orders sources without a creation timestamp after every dated one.
var DistantPast = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

// Source is a single user-selected unit of media. The set of implementations is
// closed: Clip and Still are the only variants.
type Source interface {
	// SourceID is unique within a session.
	SourceID() string
	// Kind reports which variant this is.
	Kind() Kind
	// OriginRef is the file the media was selected from.
	OriginRef() string
	// Created returns the creation timestamp, or DistantPast when unknown.
	Created() time.Time

	isSource()
}

// Clip is a playable video file.
type Clip struct {
	ID              string
	Path            string
	NaturalDuration Time
	CreatedAt       *time.Time
}

// Still is an image that will play for a fixed duration.
// When Image is nil the image is decoded from Path on demand.
type Still struct {
	ID        string
	Path      string
	Image     image.Image
	CreatedAt *time.Time
}

func (c Clip) SourceID() string   { return c.ID }
func (c Clip) Kind() Kind         { return KindClip }
func (c Clip) OriginRef() string  { return c.Path }
func (c Clip) Created() time.Time { return createdOrDistantPast(c.CreatedAt) }
func (Clip) isSource()            {}

func (s Still) SourceID() string   { return s.ID }
func (s Still) Kind() Kind         { return KindStill }
func (s Still) OriginRef() string  { return s.Path }
func (s Still) Created() time.Time { return createdOrDistantPast(s.CreatedAt) }
func (Still) isSource()            {}

func createdOrDistantPast(t *time.Time) time.Time {
	if t == nil {
		return DistantPast
	}
	return *t
}

// Orientation is the clockwise display rotation of a video track in degrees.
type Orientation int

// Normalize folds any rotation into 0, 90, 180 or 270.
func (o Orientation) Normalize() Orientation {
	n := int(o) % 360
	if n < 0 {
		n += 360
	}
	return Orientation((n + 45) / 90 * 90 % 360)
}

// TrackInfo is what a probe learns about a clip's tracks.
type TrackInfo struct {
	Duration    Time
	HasVideo    bool
	HasAudio    bool
	Width       int
	Height      int
	Orientation Orientation
}
