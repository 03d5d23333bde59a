package portalboxd

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"
)

const WS_DEFAULT_CHANNEL string = "updates"

// WSRelay fans portal Change events and journal tails out to websocket
// clients. Sockets are tagged with a channel name so log tails do not leak
// into the state feed.
type WSRelay struct {
	socks []WSCONN
	relay chan Change
	newWs chan WSCONN
}

func NewWSRelay(relay chan Change) WSRelay {
	return WSRelay{
		socks: []WSCONN{},
		relay: relay,
		newWs: make(chan WSCONN),
	}
}

func (t WSRelay) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		go func() {
		mainloop:
			for {
				select {
				case <-stop:
					break mainloop
				case ws := <-t.newWs:
					t.addSock(ws)
				case v := <-t.relay:
					t.Broadcast(WS_DEFAULT_CHANNEL, v)
				}
			}
		}()

		started <- true
		<-stop
		for _, sock := range t.socks {
			sock.Close()
		}
		stopped <- true
	}()
	return nil
}

func (t *WSRelay) Broadcast(channel string, v any) {
	var deleteMe []int
	for i, ws := range t.socks {
		if ws.channel != channel {
			continue
		}
		if err := websocket.JSON.Send(ws.WS, v); err != nil {
			log.WithError(err).Debug("dropping dead websocket")
			deleteMe = append(deleteMe, i)
		}
	}
	// Remove dead sockets back to front so indexes stay valid.
	for i := len(deleteMe) - 1; i >= 0; i-- {
		pos := deleteMe[i]
		t.socks[pos].Close()
		t.socks[pos] = t.socks[len(t.socks)-1]
		t.socks = t.socks[:len(t.socks)-1]
	}
}

func (t *WSRelay) addSock(ws WSCONN) {
	log.WithField("channel", ws.channel).Debug("accepting websocket connection")
	t.socks = append(t.socks, ws)
}

// GetWSHandler subscribes the client to a broadcast channel, sending an
// initial payload so the client has state to render immediately.
func (t WSRelay) GetWSHandler(channel string, initialPayloader func() any) *websocket.Server {
	return &websocket.Server{
		Handler: func(ws *websocket.Conn) {
			stop := make(chan bool)
			t.newWs <- WSCONN{ws, stop, sync.Once{}, channel}

			if err := websocket.JSON.Send(ws, initialPayloader()); err != nil {
				log.WithError(err).Warn("failed to send initial websocket payload")
			}
			<-stop // hold the connection until stopper closes
		},
		Config: websocket.Config{Origin: nil},
	}
}

// GetWSChannelHandler pipes a string channel (a journal tail) to the
// client, cancelling the producer when the socket goes away.
func (t *WSRelay) GetWSChannelHandler(channel string, ch chan string, cancel context.CancelFunc) *websocket.Server {
	stop := make(chan bool)
	start := make(chan bool)
	h := websocket.Server{
		Handler: func(ws *websocket.Conn) {
			t.newWs <- WSCONN{ws, stop, sync.Once{}, channel}
			start <- true
			<-stop // hold the connection until stopper closes
			cancel()
		},
		Config: websocket.Config{Origin: nil},
	}

	// pump that forwards the tail to subscribers
	go func() {
		<-start
	out:
		for {
			select {
			case <-stop:
				break out
			case s, ok := <-ch:
				if !ok {
					close(stop)
					break
				}
				t.Broadcast(channel, s)
			}
		}
	}()
	return &h
}

type WSCONN struct {
	WS      *websocket.Conn
	Stop    chan bool
	once    sync.Once
	channel string // 'channel' discriminator for messages
}

func (t *WSCONN) Close() {
	t.once.Do(func() {
		close(t.Stop)
	})
}
