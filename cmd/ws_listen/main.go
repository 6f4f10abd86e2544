package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"breathpacer/internal/beat"
	"breathpacer/internal/display"
)

// envelope mirrors display.Envelope with a raw payload so each type can be
// decoded on its own.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL  = flag.String("ws", "ws://127.0.0.1:8088/ws", "breathpacer websocket URL")
		frames = flag.Bool("frames", false, "also print every frame as a text gauge")
		raw    = flag.Bool("raw", false, "print messages as received")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			// Frames keep the connection alive as well as pongs do.
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			handleTextMessage(message, *frames)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func handleTextMessage(message []byte, showFrames bool) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	switch env.Type {
	case display.TypeFrame:
		if !showFrames {
			return
		}
		var f beat.Frame
		if err := json.Unmarshal(env.Data, &f); err != nil {
			log.Printf("bad frame: %v", err)
			return
		}
		fmt.Printf("[FRAME] %d/%d %s %.2f\n", f.Position, f.BeatsPerBreath, gauge(f.Radius, 40), f.Progress)

	case display.TypeBeat:
		var b beat.BeatAccepted
		if err := json.Unmarshal(env.Data, &b); err != nil {
			log.Printf("bad beat: %v", err)
			return
		}
		suffix := ""
		if b.DefaultPeriod {
			suffix = " (default)"
		}
		fmt.Printf("[BEAT] #%d position=%d period=%.3fs bpm=%.1f%s\n", b.Count, b.Position, b.Period, b.BPM, suffix)

	case display.TypeBeatRejected:
		var r beat.BeatRejected
		if err := json.Unmarshal(env.Data, &r); err != nil {
			log.Printf("bad rejection: %v", err)
			return
		}
		fmt.Printf("[REJECTED] %.0f ms after last beat\n", r.SinceLast*1000)

	case display.TypeCycle:
		var c beat.CycleCompleted
		if err := json.Unmarshal(env.Data, &c); err != nil {
			log.Printf("bad cycle: %v", err)
			return
		}
		fmt.Printf("[BREATH] %d completed\n", c.Cycles)

	default:
		fmt.Printf("[%s] %s\n", strings.ToUpper(env.Type), string(env.Data))
	}
}

// gauge draws radius in [0,1] as a bar of width w.
func gauge(radius float64, w int) string {
	n := int(radius*float64(w) + 0.5)
	n = max(0, min(w, n))
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", w-n) + "]"
}
