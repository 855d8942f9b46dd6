package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"navsync/internal/playback"

	"github.com/google/uuid"
)

// Options tune the sessions a Service creates.
type Options struct {
	Playback      playback.Config
	FrameInterval time.Duration
	Remote        RemoteOptions
	// AllowedOrigins lists the extra page origins, such as
	// "https://kiosk.example", allowed to open a page connection. The
	// origin of Playback.Base and the server's own host are always allowed.
	AllowedOrigins []string
}

// Service owns session lifecycles and runs every session operation on the
// session's loop. Storage is delegated to Repository.
type Service struct {
	repo    Repository
	opts    Options
	log     *slog.Logger
	metrics playback.Metrics
}

// NewService returns a Service storing sessions in repo. m may be nil.
func NewService(repo Repository, opts Options, log *slog.Logger, m playback.Metrics) *Service {
	return &Service{repo: repo, opts: opts, log: log, metrics: m}
}

// Create starts a new session in its initial Standard state.
func (s *Service) Create(ctx context.Context) (View, error) {
	id := SessionID(uuid.NewString())
	log := s.log.With(slog.String("session_id", string(id)))

	loop := playback.NewLoop(log, s.opts.FrameInterval)
	remote := NewRemote(id, loop, log, s.opts.Remote)
	ctrl := playback.NewController(s.opts.Playback, playback.Deps{
		Nav:       remote.Element(playback.NavChannel),
		Map:       remote.Element(playback.MapChannel),
		Camera:    remote.Camera(),
		Presenter: remote.Presenter(),
		Scheduler: loop,
		Log:       log,
		Metrics:   s.metrics,
	})

	loopCtx, cancel := context.WithCancel(context.Background())
	go loop.Run(loopCtx)

	sess := &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		loop:      loop,
		ctrl:      ctrl,
		remote:    remote,
		cancel:    cancel,
	}

	var v View
	if err := loop.Call(ctx, func() {
		ctrl.Init()
		v = sess.view()
	}); err != nil {
		cancel()
		remote.Close()
		return View{}, fmt.Errorf("init session: %w", err)
	}
	if err := s.repo.Create(sess); err != nil {
		cancel()
		remote.Close()
		return View{}, err
	}

	log.Info("session created")
	return v, nil
}

// Get returns the current view of a session. Ended sessions have no state.
func (s *Service) Get(ctx context.Context, id SessionID) (View, error) {
	sess, ended, ok := s.repo.Get(id)
	if !ok {
		return View{}, ErrSessionNotFound
	}
	if ended {
		return View{ID: sess.ID, CreatedAt: sess.CreatedAt, Ended: true}, nil
	}
	var v View
	if err := s.call(ctx, sess, func() { v = sess.view() }); err != nil {
		return View{}, err
	}
	return v, nil
}

// SetMode requests a mode and reconciles towards it.
func (s *Service) SetMode(ctx context.Context, id SessionID, mode playback.Mode) error {
	sess, err := s.active(id)
	if err != nil {
		return err
	}
	return s.call(ctx, sess, func() { sess.ctrl.SetMode(mode) })
}

// SelectPhoto records the photo picked for slot. An empty name clears it.
func (s *Service) SelectPhoto(ctx context.Context, id SessionID, slot playback.PhotoSlot, name string) error {
	sess, err := s.active(id)
	if err != nil {
		return err
	}
	return s.call(ctx, sess, func() {
		switch slot {
		case playback.SlotCurrent:
			sess.photos.Current = name
		case playback.SlotDestination:
			sess.photos.Destination = name
		}
		sess.ctrl.SelectPhoto(slot, name != "")
	})
}

// Generate reveals the output and runs a reconcile pass. It returns
// playback.ErrValidation when a photo is missing.
func (s *Service) Generate(ctx context.Context, id SessionID) error {
	sess, err := s.active(id)
	if err != nil {
		return err
	}
	var genErr error
	if err := s.call(ctx, sess, func() { genErr = sess.ctrl.Generate() }); err != nil {
		return err
	}
	return genErr
}

// Transport applies an operator play, pause or seek to channel ch and mirrors
// it onto the other channel. It returns playback.ErrReconfiguring during a
// mode switch.
func (s *Service) Transport(ctx context.Context, id SessionID, ch playback.ChannelID, a playback.Action) error {
	sess, err := s.active(id)
	if err != nil {
		return err
	}
	var trErr error
	if err := s.call(ctx, sess, func() { trErr = sess.ctrl.Transport(ch, a) }); err != nil {
		return err
	}
	return trErr
}

// End releases the camera, stops the session loop and closes the page
// connection. Ending an ended session returns ErrSessionEnded.
func (s *Service) End(ctx context.Context, id SessionID) error {
	sess, err := s.repo.End(id)
	if err != nil {
		return err
	}
	log := s.log.With(slog.String("session_id", string(id)))
	if err := sess.loop.Call(ctx, sess.ctrl.Shutdown); err != nil {
		log.Warn("session shutdown incomplete", slog.String("error", err.Error()))
	}
	sess.cancel()
	sess.remote.Close()
	log.Info("session ended")
	return nil
}

// Shutdown ends every active session.
func (s *Service) Shutdown(ctx context.Context) {
	for _, sess := range s.repo.ActiveSessions() {
		if err := s.End(ctx, sess.ID); err != nil && !errors.Is(err, ErrSessionEnded) {
			s.log.Warn("end session failed",
				slog.String("session_id", string(sess.ID)),
				slog.String("error", err.Error()))
		}
	}
}

// Remote returns the page end of an active session.
func (s *Service) Remote(id SessionID) (*Remote, error) {
	sess, err := s.active(id)
	if err != nil {
		return nil, err
	}
	return sess.remote, nil
}

// ActiveSessionCount returns the number of sessions that are not ended.
func (s *Service) ActiveSessionCount() int {
	return s.repo.ActiveSessionCount()
}

func (s *Service) active(id SessionID) (*Session, error) {
	sess, ended, ok := s.repo.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if ended {
		return nil, ErrSessionEnded
	}
	return sess, nil
}

func (s *Service) call(ctx context.Context, sess *Session, fn func()) error {
	err := sess.loop.Call(ctx, fn)
	if errors.Is(err, playback.ErrLoopStopped) {
		return ErrSessionEnded
	}
	return err
}

// view must run on the session loop.
func (sess *Session) view() View {
	snap := sess.ctrl.Snapshot()
	return View{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		Connected: sess.remote.Connected(),
		Photos:    sess.photos,
		State:     &snap,
	}
}
