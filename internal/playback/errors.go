package playback

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPermissionDenied is returned when the user or the page policy
	// refuses camera access.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrDeviceUnavailable is returned when no usable capture device exists
	// or it is held by another application.
	ErrDeviceUnavailable = errors.New("camera device unavailable")

	// ErrPlaybackRejected is returned by a media element when play() is
	// refused (autoplay policy, interrupted by a new load).
	ErrPlaybackRejected = errors.New("playback rejected")

	// ErrMediaLoad is matched by every MediaLoadError.
	ErrMediaLoad = errors.New("media load failed")

	// ErrLoadTimeout is wrapped by a MediaLoadError when neither loadeddata
	// nor error arrived in time.
	ErrLoadTimeout = errors.New("media load timed out")

	// ErrReconfiguring is returned by Transport while a mode switch is in
	// progress.
	ErrReconfiguring = errors.New("mode switch in progress")

	// ErrValidation is returned by Generate when a photo is missing.
	ErrValidation = errors.New("both photos must be selected before generating")
)

// CameraError is a classified capture failure.
type CameraError struct {
	// Kind is ErrPermissionDenied or ErrDeviceUnavailable.
	Kind error
	Err  error
}

func (e *CameraError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Is reports whether target is the error kind.
func (e *CameraError) Is(target error) bool {
	return target == e.Kind
}

func (e *CameraError) Unwrap() error {
	return e.Err
}

// ClassifyCameraError maps a capture device failure onto a CameraError.
// Names follow the DOMException names reported by getUserMedia.
func ClassifyCameraError(err error) *CameraError {
	var ce *CameraError
	if errors.As(err, &ce) {
		return ce
	}
	if err == nil {
		return &CameraError{Kind: ErrDeviceUnavailable}
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"notallowed", "permission", "security", "denied"} {
		if strings.Contains(msg, kw) {
			return &CameraError{Kind: ErrPermissionDenied, Err: err}
		}
	}
	return &CameraError{Kind: ErrDeviceUnavailable, Err: err}
}

// MediaLoadError reports that a channel could not load its source.
type MediaLoadError struct {
	Channel ChannelID
	Source  string
	Err     error
}

func (e *MediaLoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load %s on %s failed", e.Source, e.Channel)
	}
	return fmt.Sprintf("load %s on %s failed: %v", e.Source, e.Channel, e.Err)
}

func (e *MediaLoadError) Is(target error) bool {
	return target == ErrMediaLoad
}

func (e *MediaLoadError) Unwrap() error {
	return e.Err
}
