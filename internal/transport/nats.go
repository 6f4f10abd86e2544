package transport

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject carries BEAT payloads from networked sensors.
const DefaultNATSSubject = "breathpacer.beats"

// ConnectNATS dials a NATS server with reconnects enabled forever.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}

// SubscribeBeats forwards every BEAT message on subject to dst. Other
// payloads are ignored. A message may carry several lines.
func SubscribeBeats(nc *nats.Conn, subject string, dst *ChanSource) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var framer LineFramer
		framer.Write(msg.Data)
		framer.Write([]byte{'\n'})
		for framer.NextBeat() {
			dst.Signal()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}
