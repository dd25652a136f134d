package web

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-cvstream/pkg/engine"
	"github.com/teslashibe/go-cvstream/pkg/hub"
	"github.com/teslashibe/go-cvstream/pkg/matrix"
	"github.com/teslashibe/go-cvstream/pkg/stream"
)

// idlePoll is how often a pending resume checks for the previous read loop
// to finish.
const idlePoll = 5 * time.Millisecond

// FeedMessage is the JSON text message sent on /ws/video whenever the feed
// pauses, resumes or its audience changes. Frames are binary CBOR
// messages.
type FeedMessage struct {
	Type    string `json:"type"` // always "status"
	Feed    string `json:"feed"`
	Clients int    `json:"clients"`
	Paused  bool   `json:"paused"`
	Loops   int    `json:"loops"`
}

// feed forwards VideoStream frames to a hub. The stream reads only while
// the hub has clients.
type feed struct {
	video  *stream.VideoStream
	hub    *hub.Hub
	eng    engine.Engine
	codec  *matrix.Codec
	format string
	log    *slog.Logger

	mu       sync.Mutex
	watchers int
	resuming bool
	seq      uint64
}

func newFeed(video *stream.VideoStream, h *hub.Hub, eng engine.Engine, codec *matrix.Codec, format string, logger *slog.Logger) *feed {
	f := &feed{
		video:  video,
		hub:    h,
		eng:    eng,
		codec:  codec,
		format: format,
		log:    logger.With("component", "feed"),
	}
	video.Pause()
	h.OnClientCount = f.setWatchers
	return f
}

// run forwards frames until the stream closes.
func (f *feed) run() {
	for ev := range f.video.Events() {
		if ev.Kind == stream.EventError {
			f.log.Warn("video read failed", "error", ev.Err)
			continue
		}
		f.forward(ev.Value)
	}
}

func (f *feed) forward(m engine.Matrix) {
	defer m.Close()

	data, err := f.eng.EncodeImage(f.format, m)
	if err != nil {
		f.log.Warn("frame encode failed", "error", err)
		return
	}

	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.mu.Unlock()

	size := m.Size()
	msg := hub.FrameMessage{
		Seq:      seq,
		Time:     time.Now().UnixNano(),
		Rows:     size[0],
		Cols:     size[1],
		Channels: m.Channels(),
		Format:   formatName(f.format),
		Data:     data,
	}
	if tag, err := f.codec.Resolve(m.Type()); err == nil {
		msg.Type = tag.Label
	}
	if err := f.hub.BroadcastCBOR(msg); err != nil {
		f.log.Warn("frame broadcast failed", "error", err)
	}
}

// setWatchers pauses the stream when the last client leaves and resumes
// it when one arrives.
func (f *feed) setWatchers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.watchers = n
	defer f.announce()

	if n == 0 {
		f.video.Pause()
		return
	}
	if !f.video.Paused() && f.video.ActiveLoops() > 0 {
		return
	}
	if !f.resuming {
		f.resuming = true
		go f.resumeWhenIdle()
	}
}

// announce broadcasts the feed state. f.mu must be held.
func (f *feed) announce() {
	msg := FeedMessage{
		Type:    "status",
		Feed:    f.hub.Name(),
		Clients: f.watchers,
		Paused:  f.video.Paused(),
		Loops:   f.video.ActiveLoops(),
	}
	if err := f.hub.BroadcastJSON(msg); err != nil {
		f.log.Warn("status broadcast failed", "error", err)
	}
}

// resumeWhenIdle waits for the previous loop's in-flight read before
// resuming, so only one read loop ever runs.
func (f *feed) resumeWhenIdle() {
	for f.video.ActiveLoops() > 0 && f.video.Readable() {
		time.Sleep(idlePoll)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.resuming = false
	if f.watchers > 0 && f.video.ActiveLoops() == 0 && f.video.Readable() {
		f.log.Debug("resuming video", "watchers", f.watchers)
		f.video.Resume()
		f.announce()
	}
}

func formatName(ext string) string {
	name := strings.TrimPrefix(strings.ToLower(ext), ".")
	if name == "jpg" {
		return "jpeg"
	}
	return name
}
