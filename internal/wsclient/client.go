// Package wsclient publishes model state snapshots to a browser over
// websocket, for the demo's live value feed. It is a single-purpose,
// unidirectional publisher: the only thing it ever sends is the latest
// value snapshot, throttled to pubResolution, plus keepalive pings.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second

	// The rate at which value snapshots are sent to the client, so a fast
	// training loop doesn't overrun a slow browser tab.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	pongWait       = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// ErrPongDeadlineExceeded indicates the client stopped responding to pings.
var ErrPongDeadlineExceeded = errors.New("client disconnect, pong deadline exceeded")

// Client publishes snapshots of type T to one browser tab, unidirectionally,
// over websocket. Items read from updates should be idempotent — the
// entire current state, not a delta — since an update that arrives less
// than pubResolution after the previous send is dropped, not deferred; the
// most recent update is therefore not guaranteed to be sent.
type Client[T any] struct {
	updates <-chan T
	conn    *websocket.Conn
	writeMu sync.Mutex
	rootCtx context.Context
}

// NewClient upgrades r to a websocket and returns a publisher that will
// forward values read from updates to it.
func NewClient[T any](
	updates <-chan T,
	w http.ResponseWriter,
	r *http.Request,
) (*Client[T], error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}

	return &Client[T]{
		updates: updates,
		conn:    conn,
		rootCtx: r.Context(),
	}, nil
}

// Sync runs the publish/ping/read loops until the client disconnects or an
// unexpected error occurs. The read loop exists solely to pump gorilla's
// control-frame processing (pong handling happens only on Read), not to
// accept application messages — this feed never receives any.
func (cli *Client[T]) Sync() error {
	group, groupCtx := errgroup.WithContext(cli.rootCtx)

	group.Go(func() error {
		return cli.drainControlFrames(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})

	return group.Wait()
}

func (cli *Client[T]) pingPong(ctx context.Context) error {
	pong := make(chan struct{})
	defer close(pong)
	cli.conn.SetPongHandler(func(_ string) error {
		pong <- struct{}{}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client[T]) ping() error {
	cli.writeMu.Lock()
	defer cli.writeMu.Unlock()

	if err := cli.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		if isUnexpectedClose(err) {
			return fmt.Errorf("ping failed: %w", err)
		}
	}
	return nil
}

// drainControlFrames reads (and discards) whatever arrives on the
// connection. This feed is publish-only, so any application message is
// unexpected, but the read itself is required: gorilla only invokes the
// pong handler while a read is in flight.
func (cli *Client[T]) drainControlFrames(ctx context.Context) error {
	for {
		if _, _, err := cli.conn.ReadMessage(); err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
	}
}

func (cli *Client[T]) publish(ctx context.Context) error {
	lastSync := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-cli.updates:
			if !ok {
				return nil
			}
			if time.Since(lastSync) < pubResolution {
				break
			}
			lastSync = time.Now()

			if err := cli.write(snapshot); err != nil {
				return err
			}
		}
	}
}

func (cli *Client[T]) write(snapshot T) error {
	cli.writeMu.Lock()
	defer cli.writeMu.Unlock()

	if err := cli.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}
	if err := cli.conn.WriteJSON(snapshot); err != nil {
		if isUnexpectedClose(err) {
			return fmt.Errorf("publish failed: %w", err)
		}
	}
	return nil
}

func isUnexpectedClose(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
