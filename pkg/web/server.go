// Package web serves the matrix codec, the detection streams and a live
// video feed over HTTP and websockets.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-cvstream/internal/config"
	"github.com/teslashibe/go-cvstream/internal/log"
	"github.com/teslashibe/go-cvstream/pkg/cascade"
	"github.com/teslashibe/go-cvstream/pkg/engine"
	"github.com/teslashibe/go-cvstream/pkg/hub"
	"github.com/teslashibe/go-cvstream/pkg/matrix"
	"github.com/teslashibe/go-cvstream/pkg/stream"
)

// Server is the HTTP server
type Server struct {
	app  *fiber.App
	port string
	log  *slog.Logger

	eng      engine.Engine
	codec    *matrix.Codec
	registry *cascade.Registry
	cache    *cascade.Cache
	detect   engine.DetectOptions
	opts     []stream.Option

	// Video feed; nil when no capture source is configured
	videoHub *hub.Hub
	video    *stream.VideoStream
	feed     *feed

	mu        sync.Mutex
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewServer creates a server over eng. If cfg.Source is set, the capture
// is opened now and served on /ws/video.
func NewServer(eng engine.Engine, cfg config.Config) (*Server, error) {
	logger := log.With("component", "web")
	s := &Server{
		port:     cfg.Port,
		log:      logger,
		eng:      eng,
		codec:    matrix.NewCodec(eng),
		registry: cfg.Registry(),
		cache:    cascade.NewCache(eng),
		detect:   cfg.Detect.Options(),
		opts: []stream.Option{
			stream.WithBuffer(cfg.Stream.Buffer),
			stream.WithLogger(logger),
		},
		videoHub: hub.New("video"),
	}

	if cfg.Source != "" {
		video, err := stream.OpenVideoStream(eng, cfg.Source, s.opts...)
		if err != nil {
			return nil, err
		}
		s.video = video
		s.feed = newFeed(video, s.videoHub, eng, s.codec, cfg.Stream.FrameFormat, logger)
	}

	app := fiber.New(fiber.Config{
		AppName:               "cvstream",
		DisableStartupMessage: true,
		BodyLimit:             cfg.MaxBodyBytes,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/types", s.handleTypes)
	api.Get("/cascades", s.handleCascades)
	api.Post("/matrix/decode", s.handleDecode)
	api.Post("/matrix/encode", s.handleEncode)
	api.Post("/detect/:cascade", s.handleDetect)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/video", websocket.New(s.handleVideoWS))

	s.app = app
	return s, nil
}

// App returns the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hub and the video feed, then serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.videoHub.Run(ctx)
	if s.feed != nil {
		go s.feed.run()
	}

	s.log.Info("listening", "addr", fmt.Sprintf("http://localhost:%s", s.port), "video", s.video != nil)
	return s.app.Listen(":" + s.port)
}

// Shutdown stops the server, the hub and the video stream and releases
// the cached classifiers.
func (s *Server) Shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.app.Shutdown()
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		if s.video != nil {
			if cerr := s.video.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		if cerr := s.cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
