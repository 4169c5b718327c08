package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/protocol"
)

func main() {
	var (
		baseURL   = flag.String("url", "http://127.0.0.1:8080", "server base url (observer endpoints are loopback-only)")
		waypoints = flag.Bool("waypoints", true, "draw agent routes")
		scale     = flag.Float64("scale", 1, "blocks per terminal cell")
		logPath   = flag.String("log", "", "write viewer logs to this file (the terminal is taken by the map)")
	)
	flag.Parse()

	logger := log.New(io.Discard, "[viewer] ", log.LstdFlags|log.Lmicroseconds)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open log:", err)
			os.Exit(1)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	base := strings.TrimRight(strings.TrimSpace(*baseURL), "/")
	boot, err := fetchBootstrap(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap:", err)
		os.Exit(1)
	}

	wsURL, err := observerWSURL(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -url:", err)
		os.Exit(1)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()
	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version, Waypoints: *waypoints}
	if err := conn.WriteJSON(sub); err != nil {
		fmt.Fprintln(os.Stderr, "subscribe:", err)
		os.Exit(1)
	}

	frames := make(chan *protocol.FrameMsg, 1)
	readErr := make(chan error, 1)
	go readFrames(conn, frames, readErr, logger)

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintln(os.Stderr, "screen:", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "screen init:", err)
		os.Exit(1)
	}
	defer screen.Fini()

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	cam := camera{scale: *scale}
	terr := newTerrain(base)
	var last *protocol.FrameMsg
	var follow string
	redraw := time.NewTicker(100 * time.Millisecond)
	defer redraw.Stop()

	for {
		select {
		case err := <-readErr:
			screen.Fini()
			fmt.Fprintln(os.Stderr, "observer stream closed:", err)
			os.Exit(1)
		case f := <-frames:
			last = f
			if follow != "" {
				for _, a := range f.Agents {
					if a.ID == follow {
						cam.cx, cam.cz = a.Pos[0], a.Pos[2]
					}
				}
			}
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				step := 8 * cam.scale
				switch ev.Key() {
				case tcell.KeyEscape, tcell.KeyCtrlC:
					return
				case tcell.KeyUp:
					cam.cz -= step
					follow = ""
				case tcell.KeyDown:
					cam.cz += step
					follow = ""
				case tcell.KeyLeft:
					cam.cx -= step
					follow = ""
				case tcell.KeyRight:
					cam.cx += step
					follow = ""
				case tcell.KeyTab:
					follow = nextAgent(last, follow)
					logger.Printf("follow=%q", follow)
				case tcell.KeyRune:
					switch ev.Rune() {
					case 'q':
						return
					case '+', '=':
						cam.zoom(true)
					case '-':
						cam.zoom(false)
					case '0':
						cam.cx, cam.cz = 0, 0
						follow = ""
					}
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		case <-redraw.C:
			draw(screen, cam, terr, boot, last, follow)
		}
	}
}

func fetchBootstrap(base string) (protocol.BootstrapResponse, error) {
	var boot protocol.BootstrapResponse
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(base + "/v1/observer/bootstrap")
	if err != nil {
		return boot, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return boot, fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		return boot, err
	}
	if boot.ProtocolVersion != protocol.Version {
		return boot, fmt.Errorf("protocol version %q, viewer speaks %q", boot.ProtocolVersion, protocol.Version)
	}
	return boot, nil
}

func observerWSURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/observer/ws"
	return u.String(), nil
}

// readFrames keeps only the newest frame; the screen redraws on its own clock.
func readFrames(conn *websocket.Conn, frames chan *protocol.FrameMsg, errc chan<- error, logger *log.Logger) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeFrame {
			continue
		}
		var f protocol.FrameMsg
		if err := json.Unmarshal(msg, &f); err != nil {
			logger.Printf("bad frame: %v", err)
			continue
		}
		select {
		case frames <- &f:
		default:
			select {
			case <-frames:
			default:
			}
			frames <- &f
		}
	}
}
