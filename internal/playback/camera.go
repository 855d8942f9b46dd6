package playback

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// CameraErrorTitle replaces the nav title when the camera cannot start.
const CameraErrorTitle = "Camera View (Error)"

var errAcquisitionAborted = errors.New("camera stopped while acquiring")

// CameraSession wraps the single live capture stream.
type CameraSession struct {
	id     string
	stream StreamHandle
	bound  *Channel
}

// ID returns the session identifier used in logs.
func (s *CameraSession) ID() string { return s.id }

// Stream returns the owned capture stream.
func (s *CameraSession) Stream() StreamHandle { return s.stream }

type acquisition struct {
	waiters []func(error)
}

// Supervisor owns the live camera lifecycle for the nav channel. It
// guarantees that at most one CameraSession exists, including while an
// acquisition is still pending on the capture device.
type Supervisor struct {
	device    CaptureDevice
	nav       *Channel
	presenter Presenter
	log       *slog.Logger
	metrics   Metrics

	session   *CameraSession
	acquiring *acquisition
}

// NewSupervisor returns a supervisor binding camera streams to nav.
func NewSupervisor(device CaptureDevice, nav *Channel, p Presenter, log *slog.Logger, m Metrics) *Supervisor {
	if m == nil {
		m = NopMetrics{}
	}
	return &Supervisor{device: device, nav: nav, presenter: p, log: log, metrics: m}
}

// Session returns the live session, or nil.
func (s *Supervisor) Session() *CameraSession {
	return s.session
}

// Acquiring reports whether a capture request is in flight.
func (s *Supervisor) Acquiring() bool {
	return s.acquiring != nil
}

// Streaming reports whether the session is bound to nav and playing.
func (s *Supervisor) Streaming() bool {
	return s.session != nil && s.nav.el.Stream() == s.session.stream && !s.nav.el.Paused()
}

// StartCamera makes sure a camera session is bound to nav and playing.
// done receives nil or a *CameraError; it is never called more than once.
// Failures are reported to the presenter and never escape as panics.
func (s *Supervisor) StartCamera(done func(error)) {
	if done == nil {
		done = func(error) {}
	}

	if sess := s.session; sess != nil {
		if s.Streaming() {
			done(nil)
			return
		}
		if s.nav.el.Stream() != sess.stream {
			s.nav.ClearFile()
			s.nav.el.AttachStream(sess.stream)
			sess.bound = s.nav
		}
		if s.nav.el.Paused() {
			s.nav.el.Play(func(err error) {
				if err != nil {
					s.log.Warn("resume camera stream failed",
						slog.String("camera_session", sess.id),
						slog.String("error", err.Error()))
				}
			})
		}
		done(nil)
		return
	}

	if s.acquiring != nil {
		s.acquiring.waiters = append(s.acquiring.waiters, done)
		return
	}

	acq := &acquisition{waiters: []func(error){done}}
	s.acquiring = acq
	s.device.RequestStream(RearCamera, func(stream StreamHandle, err error) {
		s.acquired(acq, stream, err)
	})
}

func (s *Supervisor) acquired(acq *acquisition, stream StreamHandle, err error) {
	if s.acquiring != acq {
		// StopCamera ran while the request was pending.
		if stream != nil {
			stream.Stop()
			s.log.Info("released camera stream granted after stop", slog.String("stream", stream.ID()))
		}
		return
	}
	s.acquiring = nil

	if err != nil {
		s.fail(acq, nil, stream, err)
		return
	}
	if s.session != nil {
		// Unreachable while acquisitions are joined; keep the existing session.
		s.log.Error("second camera stream granted, releasing it",
			slog.String("camera_session", s.session.id))
		stream.Stop()
		notify(acq, nil)
		return
	}

	sess := &CameraSession{id: uuid.New().String(), stream: stream, bound: s.nav}
	s.session = sess
	s.nav.ClearFile()
	s.nav.el.AttachStream(stream)
	s.nav.el.SetMuted(true)
	s.nav.el.SetControls(false)
	s.nav.el.Play(func(err error) {
		if s.session != sess {
			notify(acq, &CameraError{Kind: ErrDeviceUnavailable, Err: errAcquisitionAborted})
			return
		}
		if err != nil {
			s.fail(acq, sess, stream, &CameraError{Kind: ErrDeviceUnavailable, Err: err})
			return
		}
		s.metrics.IncCameraStart()
		s.log.Info("camera started", slog.String("camera_session", sess.id))
		notify(acq, nil)
	})
}

func (s *Supervisor) fail(acq *acquisition, sess *CameraSession, stream StreamHandle, err error) {
	cerr := ClassifyCameraError(err)
	if stream != nil {
		stream.Stop()
	}
	if sess != nil && s.session == sess {
		s.session = nil
	}
	s.nav.el.AttachStream(nil)
	s.nav.el.SetControls(true)
	if s.presenter != nil {
		s.presenter.SetNavTitle(CameraErrorTitle)
	}
	s.metrics.IncCameraFailure(cameraErrorLabel(cerr))
	s.log.Error("camera start failed", slog.String("error", cerr.Error()))
	notify(acq, cerr)
}

// StopCamera releases the session, if any. It is idempotent and never fails.
// A pending acquisition is abandoned; its stream is released on arrival.
func (s *Supervisor) StopCamera() {
	if acq := s.acquiring; acq != nil {
		s.acquiring = nil
		notify(acq, &CameraError{Kind: ErrDeviceUnavailable, Err: errAcquisitionAborted})
	}
	if sess := s.session; sess != nil {
		s.session = nil
		sess.bound = nil
		sess.stream.Stop()
		s.log.Info("camera stopped", slog.String("camera_session", sess.id))
	}
	if s.nav.el.Stream() != nil {
		s.nav.el.AttachStream(nil)
	}
	s.nav.el.SetControls(true)
}

func notify(acq *acquisition, err error) {
	waiters := acq.waiters
	acq.waiters = nil
	for _, fn := range waiters {
		fn(err)
	}
}

func cameraErrorLabel(err *CameraError) string {
	if errors.Is(err, ErrPermissionDenied) {
		return "permission_denied"
	}
	return "device_unavailable"
}
