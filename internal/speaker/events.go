package speaker

import (
	"context"

	"github.com/nerrad567/gray-logic-sonos/internal/sonos"
)

// enqueue is the subscription handler. It blocks while the queue is full
// so no event is lost, and returns immediately once the speaker is closed.
func (s *Speaker) enqueue(ev sonos.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// processEvents handles queued events one at a time in arrival order.
func (s *Speaker) processEvents() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

func (s *Speaker) handleEvent(ev sonos.Event) {
	err := s.locked(func() error {
		return s.dispatchLocked(ev)
	})
	if err != nil && err != ErrDisconnected {
		s.logger.Warn("event handling failed", "device_id", s.id, "channel", ev.Channel(), "error", err)
	}
}

// dispatchLocked maps one event onto the cache. Caller holds mu.
func (s *Speaker) dispatchLocked(ev sonos.Event) error {
	switch e := ev.(type) {
	case sonos.PlayStateEvent:
		playing := e.State == sonos.StatePlaying
		s.cache.SetCached(PropPlaying, playing)
		s.progress.SetPlaying(playing)
		s.syncTickerLocked()

	case sonos.PlaybackStoppedEvent:
		s.cache.SetCached(PropPlaying, false)
		s.progress.SetPlaying(false)
		s.clearTrackLocked()

	case sonos.CurrentTrackEvent:
		return s.onCurrentTrackLocked(e.Track)

	case sonos.AVTransportEvent:
		s.observePlayModeLocked(e.PlayMode)
		s.cache.SetCached(PropCrossfade, e.Crossfade)
		if e.MetadataKnown && !e.HasMetadata {
			s.clearTrackLocked()
		}

	case sonos.VolumeEvent:
		if !s.volume.Fixed() {
			s.cache.SetCached(PropVolume, clampVolume(e.Volume))
		}

	case sonos.MutedEvent:
		s.cache.SetCached(PropMuted, e.Muted)

	default:
		s.logger.Debug("ignoring event", "device_id", s.id, "channel", ev.Channel())
	}
	return nil
}

// onCurrentTrackLocked applies new track metadata. A track without a
// position is re-queried before the progress state is touched; if that
// query fails the speaker is assumed disconnected. Album art is refreshed
// in the background once the progress state is settled.
func (s *Speaker) onCurrentTrackLocked(track sonos.Track) error {
	s.stopTickerLocked()
	s.applyTrackInfoLocked(track)

	duration, position := track.Duration, track.Position
	if duration > 0 && position == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.commandTimeout)
		fresh, err := s.device.CurrentTrack(ctx)
		cancel()
		if err != nil {
			return remote("currentTrack", err)
		}
		duration, position = fresh.Duration, fresh.Position
	}

	s.progress.Load(duration, position)
	s.publishProgressLocked()
	s.syncTickerLocked()
	s.scheduleArtLocked(track.ArtURI)
	return nil
}

func (s *Speaker) observePlayModeLocked(wire string) {
	mode, ok := s.modes.Observe(wire)
	if !ok {
		if wire != "" {
			s.logger.Debug("unknown play mode", "device_id", s.id, "mode", wire)
		}
		return
	}
	s.cache.SetCached(PropShuffle, mode.Shuffle())
	s.cache.SetCached(PropRepeat, string(mode.Repeat()))
}

func (s *Speaker) applyTrackInfoLocked(track sonos.Track) {
	s.cache.SetCached(PropTrack, track.Title)
	s.cache.SetCached(PropArtist, track.Artist)
	s.cache.SetCached(PropAlbum, track.Album)
}

// clearTrackLocked drops all track state and cancels the ticker.
func (s *Speaker) clearTrackLocked() {
	s.stopTickerLocked()
	s.applyTrackInfoLocked(sonos.Track{})
	s.progress.Reset()
	s.publishProgressLocked()
	s.scheduleArtLocked("")
}

// requestArtLocked records uri as the wanted album art and returns the
// generation that must refresh it, or 0 when uri is already the wanted
// one. Caller holds mu.
func (s *Speaker) requestArtLocked(uri string) uint64 {
	if s.art == nil || s.closed || (s.artSeen && uri == s.artURI) {
		return 0
	}
	s.artURI, s.artSeen = uri, true
	return s.artGen.Add(1)
}

// scheduleArtLocked refreshes album art on its own goroutine so a slow
// art host never holds mu or eats into a device command deadline.
// Caller holds mu.
func (s *Speaker) scheduleArtLocked(uri string) {
	gen := s.requestArtLocked(uri)
	if gen == 0 {
		return
	}
	s.artWG.Add(1)
	go func() {
		defer s.artWG.Done()
		s.refreshArt(gen, uri)
	}()
}

// refreshArt stores the art for uri and caches its href unless a newer
// request superseded it. Failures are logged only; the art URI may point
// anywhere, not just at the device. Must not be called with mu held.
func (s *Speaker) refreshArt(gen uint64, uri string) {
	s.artMu.Lock()
	defer s.artMu.Unlock()
	if s.artGen.Load() != gen {
		return
	}

	ctx, cancel := context.WithTimeout(s.artCtx, s.artTimeout)
	defer cancel()
	href, err := s.art.Update(ctx, s.id, uri)
	if err != nil {
		s.logger.Warn("album art update failed", "device_id", s.id, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.artGen.Load() != gen {
		return
	}
	s.cache.SetCached(PropAlbumArt, href)
}

func (s *Speaker) publishProgressLocked() {
	s.cache.SetCached(PropProgress, s.progress.Percent())
	s.cache.SetCached(PropPosition, s.progress.Position())
}

// syncTickerLocked starts or stops the ticker to match the progress state.
// At most one ticker exists per speaker.
func (s *Speaker) syncTickerLocked() {
	if !s.progress.Active() || s.failed || s.closed {
		s.stopTickerLocked()
		return
	}
	if s.tickStop != nil {
		return
	}
	s.tickGen++
	stop := make(chan struct{})
	s.tickStop = stop
	go s.runTicker(s.tickGen, s.newTicker(tickInterval), stop)
}

func (s *Speaker) stopTickerLocked() {
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
}

func (s *Speaker) runTicker(gen uint64, t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			s.tick(gen)
		}
	}
}

// tick advances the estimate. Ticks from a cancelled ticker are dropped.
func (s *Speaker) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.tickGen || s.tickStop == nil || s.failed || s.closed {
		return
	}
	if s.progress.Tick() {
		s.publishProgressLocked()
	}
}

// TickerActive reports whether the progress ticker is running.
func (s *Speaker) TickerActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickStop != nil
}
