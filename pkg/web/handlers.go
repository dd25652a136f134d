package web

import (
	"context"
	"errors"
	"image"
	"mime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-cvstream/pkg/cascade"
	"github.com/teslashibe/go-cvstream/pkg/hub"
	"github.com/teslashibe/go-cvstream/pkg/matrix"
	"github.com/teslashibe/go-cvstream/pkg/stream"
)

const (
	// requestTimeout bounds the engine work of one request
	requestTimeout = 30 * time.Second

	// chunkSize is how request bodies are fed to an ImageDataStream
	chunkSize = 64 * 1024
)

// TypeInfo describes a resolved type tag
type TypeInfo struct {
	Label    string `json:"label"`
	Code     int    `json:"code"`
	Bits     int    `json:"bits"`
	Kind     string `json:"kind"`
	Channels int    `json:"channels,omitempty"`
}

// MatrixResponse is a decoded matrix
type MatrixResponse struct {
	Rows     int          `json:"rows"`
	Cols     int          `json:"cols"`
	Type     string       `json:"type"`
	Channels int          `json:"channels"`
	Data     matrix.Array `json:"data"`
}

// EncodeRequest is the request body for /api/matrix/encode
type EncodeRequest struct {
	Type   string       `json:"type"`
	Data   matrix.Array `json:"data"`
	Format string       `json:"format,omitempty"` // ".png" (default) or ".jpg"
}

// Rect is a detected object
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectResponse is the result of /api/detect/:cascade
type DetectResponse struct {
	Cascade string `json:"cascade"`
	Rows    int    `json:"rows"`
	Cols    int    `json:"cols"`
	Objects []Rect `json:"objects"`
}

// StatusResponse reports server state
type StatusResponse struct {
	Types       int          `json:"types"`
	Cascades    int          `json:"cascades"`
	Classifiers int          `json:"classifiers"`
	Video       *VideoStatus `json:"video,omitempty"`
}

// VideoStatus reports the live feed
type VideoStatus struct {
	Clients int    `json:"clients"`
	Paused  bool   `json:"paused"`
	Loops   int    `json:"loops"`
	Frames  uint64 `json:"frames"`
	Dropped uint64 `json:"dropped"` // broadcasts lost to a full hub queue
}

// handleStatus returns server state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Types:       len(s.codec.Types().Tags()),
		Cascades:    len(s.registry.List()),
		Classifiers: s.cache.Len(),
	}
	if s.video != nil {
		resp.Video = &VideoStatus{
			Clients: s.videoHub.ClientCount(),
			Paused:  s.video.Paused(),
			Loops:   s.video.ActiveLoops(),
			Frames:  s.video.Frames(),
			Dropped: s.videoHub.Dropped(),
		}
	}
	return c.JSON(resp)
}

// handleTypes lists the resolved type tags
func (s *Server) handleTypes(c *fiber.Ctx) error {
	tags := s.codec.Types().Tags()
	out := make([]TypeInfo, 0, len(tags))
	for _, t := range tags {
		out = append(out, TypeInfo{
			Label:    t.Label,
			Code:     int(t.Code),
			Bits:     t.Bits,
			Kind:     t.Kind.String(),
			Channels: t.Channels,
		})
	}
	return c.JSON(out)
}

// handleCascades lists the registered cascades
func (s *Server) handleCascades(c *fiber.Ctx) error {
	return c.JSON(s.registry.List())
}

// handleDecode decodes an image body into a nested array
func (s *Server) handleDecode(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "empty body")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	ds := stream.NewImageDataStream(s.eng, s.opts...)
	defer ds.Close()

	for len(body) > chunkSize {
		ds.Write(body[:chunkSize])
		body = body[chunkSize:]
	}
	if err := ds.End(body); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}

	ev, err := await(ctx, ds.Events())
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	m := ev.Value
	defer m.Close()

	arr, err := s.codec.ToArray(m)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	tag, _ := s.codec.Resolve(m.Type())
	rows, cols, channels := arr.Shape()
	return c.JSON(MatrixResponse{
		Rows:     rows,
		Cols:     cols,
		Type:     tag.Label,
		Channels: channels,
		Data:     arr,
	})
}

// handleEncode builds a matrix from a nested array and returns it as an image
func (s *Server) handleEncode(c *fiber.Ctx) error {
	var req EncodeRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}

	tag, ok := s.codec.Types().Lookup(req.Type)
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "unknown type "+req.Type)
	}
	format := req.Format
	if format == "" {
		format = ".png"
	}

	m, err := s.codec.FromArray(req.Data, tag.Code)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	defer m.Close()

	data, err := s.eng.EncodeImage(format, m)
	if err != nil {
		return errorJSON(c, fiber.StatusUnprocessableEntity, err.Error())
	}
	if ct := mime.TypeByExtension(format); ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	return c.Send(data)
}

// handleDetect runs a cascade over an image body
func (s *Server) handleDetect(c *fiber.Ctx) error {
	cas, err := s.registry.Get(c.Params("cascade"))
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	body := c.Body()
	if len(body) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "empty body")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	det, err := stream.NewObjectDetectionStream(s.cache, cas, s.detect, s.opts...)
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	defer det.Close()

	img := stream.NewImageStream(s.eng, s.opts...)
	defer img.Close()

	// Fiber reuses the body buffer after the handler returns.
	img.Write(append([]byte(nil), body...))
	frame, err := await(ctx, img.Events())
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	size := frame.Value.Size()

	det.Write(frame.Value)
	ev, err := await(ctx, det.Events())
	if err != nil {
		return errorJSON(c, statusFor(err), err.Error())
	}
	defer ev.Value.Frame.Close()

	return c.JSON(DetectResponse{
		Cascade: cas.Name,
		Rows:    size[0],
		Cols:    size[1],
		Objects: toRects(ev.Value.Objects),
	})
}

// handleVideoWS streams CBOR frames to a websocket client
func (s *Server) handleVideoWS(c *websocket.Conn) {
	if s.feed == nil {
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "no video source"))
		return
	}

	client := hub.NewClient(s.videoHub, c)
	if client == nil {
		return
	}
	client.Run()
}

// await returns the next event, turning EventError and a closed channel
// into errors.
func await[T any](ctx context.Context, events <-chan stream.Event[T]) (stream.Event[T], error) {
	select {
	case ev, ok := <-events:
		if !ok {
			return ev, stream.ErrClosed
		}
		if ev.Kind == stream.EventError {
			return ev, ev.Err
		}
		return ev, nil
	case <-ctx.Done():
		return stream.Event[T]{}, ctx.Err()
	}
}

func toRects(rs []image.Rectangle) []Rect {
	out := make([]Rect, 0, len(rs))
	for _, r := range rs {
		out = append(out, Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()})
	}
	return out
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var engErr *stream.EngineError
	switch {
	case errors.Is(err, matrix.ErrShapeMismatch),
		errors.Is(err, matrix.ErrValueRange),
		errors.Is(err, matrix.ErrUnresolvedType):
		return fiber.StatusBadRequest
	case errors.Is(err, matrix.ErrUnsupportedType):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, cascade.ErrUnknownCascade):
		return fiber.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &engErr):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
