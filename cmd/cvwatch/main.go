// cvwatch tails the video feed of a cvstream server and optionally saves
// the frames.
//
// Usage:
//
//	cvwatch [--url ws://localhost:8080/ws/video] [--out frames] [--count 10] [--width 320] [--detect FACE_CASCADE]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/teslashibe/go-cvstream/internal/httpc"
	"github.com/teslashibe/go-cvstream/pkg/hub"
	"github.com/teslashibe/go-cvstream/pkg/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var wsURL, outDir, detect string
	var count, width int

	flagSet := pflag.NewFlagSet("cvwatch", pflag.ContinueOnError)
	flagSet.StringVarP(&wsURL, "url", "u", "ws://localhost:8080/ws/video", "video websocket URL")
	flagSet.StringVarP(&outDir, "out", "o", "", "directory to save frames to")
	flagSet.IntVarP(&count, "count", "n", 0, "stop after this many frames (0 = until interrupted)")
	flagSet.IntVar(&width, "width", 0, "resize saved frames to this width (0 = original)")
	flagSet.StringVarP(&detect, "detect", "d", "", "run this cascade on every frame through the server's detect API")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	base, err := apiBase(wsURL)
	if err != nil {
		return err
	}
	var status web.StatusResponse
	if err := httpc.GetJSON(ctx, base+"/api/status", &status); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if status.Video == nil {
		return errors.New("server has no video source")
	}
	fmt.Printf("📡 %s: %d types, %d cascades, %d watching\n", base, status.Types, status.Cascades, status.Video.Clients)

	fmt.Printf("🔌 Connecting to %s\n", wsURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	start := time.Now()
	received := 0
	for count == 0 || received < count {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return fmt.Errorf("read: %w", err)
		}
		if mt == websocket.TextMessage {
			var msg web.FeedMessage
			if err := json.Unmarshal(data, &msg); err == nil && msg.Type == "status" {
				state := "live"
				if msg.Paused {
					state = "paused"
				}
				fmt.Printf("ℹ️  %s feed %s, %d watching\n", msg.Feed, state, msg.Clients)
			}
			continue
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		frame, err := hub.DecodeFrame(data)
		if err != nil {
			fmt.Printf("⚠️  %v\n", err)
			continue
		}
		received++
		fmt.Printf("📷 #%d %dx%d %s %s (%d KB)\n", frame.Seq, frame.Cols, frame.Rows, frame.Type, frame.Format, len(frame.Data)/1024)

		if detect != "" {
			var res web.DetectResponse
			contentType := "image/" + frame.Format
			if err := httpc.PostJSON(ctx, base+"/api/detect/"+detect, contentType, frame.Data, &res); err != nil {
				fmt.Printf("⚠️  detect: %v\n", err)
			} else {
				for _, o := range res.Objects {
					fmt.Printf("   🎯 %s at (%d,%d) %dx%d\n", res.Cascade, o.X, o.Y, o.Width, o.Height)
				}
			}
		}

		if outDir != "" {
			if err := save(outDir, frame, width); err != nil {
				fmt.Printf("⚠️  save: %v\n", err)
			}
		}
	}

	elapsed := time.Since(start).Seconds()
	if elapsed > 0 {
		fmt.Printf("\n👋 %d frames in %.1fs (%.1f fps)\n", received, elapsed, float64(received)/elapsed)
	}
	return nil
}

// apiBase turns a websocket URL into the server's HTTP base URL.
func apiBase(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path, u.RawQuery = "", ""
	return u.String(), nil
}

// save writes the frame as-is, or decoded and resized when width is set.
func save(dir string, frame hub.FrameMessage, width int) error {
	ext := frame.Format
	if ext == "jpeg" {
		ext = "jpg"
	}
	path := filepath.Join(dir, fmt.Sprintf("frame-%06d.%s", frame.Seq, ext))

	if width <= 0 {
		return os.WriteFile(path, frame.Data, 0o644)
	}

	img, err := imaging.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return err
	}
	return imaging.Save(imaging.Resize(img, width, 0, imaging.Lanczos), path)
}
