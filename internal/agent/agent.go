// Package agent is the participant side of a board. An Agent echoes local
// strokes immediately, sends them to the relay, and folds the relay's replay
// and broadcasts into a Renderer so that every participant converges on the
// same picture.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shared-canvas/backend/internal/buffer"
	"github.com/shared-canvas/backend/internal/model"
	"github.com/shared-canvas/backend/internal/render"
	"github.com/shared-canvas/backend/internal/ws"
)

const (
	// Time allowed to write a message to the relay.
	writeWait = 10 * time.Second

	// Time allowed between pings from the relay.
	pongWait = 60 * time.Second

	defaultOutboxSize     = 1024
	defaultReconnectDelay = time.Second
	defaultAckEvery       = 32

	// Local submissions waiting for the loop.
	submitBufferSize = 256

	// Relay messages read ahead of the loop. Larger than the relay's send
	// queue so a busy loop never stalls the socket.
	inboundBufferSize = 1024
)

var errNotConnected = errors.New("not connected")

// Options configures an Agent.
type Options struct {
	// URL is the board's attach endpoint, see AttachURL.
	URL string

	// Renderer receives every change to the local picture. When nil the
	// agent draws into a Raster sized by the board it joins.
	Renderer render.Renderer

	Dialer *websocket.Dialer
	Header http.Header

	// OutboxSize bounds the events kept while offline. The oldest is
	// dropped when it overflows.
	OutboxSize int

	ReconnectDelay time.Duration

	// AckEvery is how many applied events pass between acks.
	AckEvery int
}

// State is a point-in-time view of an agent.
type State struct {
	Connected      bool   `json:"connected"`
	ClientID       string `json:"clientId"`
	BoardID        string `json:"boardId"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	LastSequenceID uint64 `json:"lastSequenceId"`
	Confirmed      int    `json:"confirmed"`
	InFlight       int    `json:"inFlight"`
	Queued         int    `json:"queued"`
	Dropped        int    `json:"dropped"`
	Rejected       int    `json:"rejected"`
	Submitted      int    `json:"submitted"`
	Connects       int    `json:"connects"`
	Redraws        int    `json:"redraws"`
}

// Settled reports whether nothing of this agent's own is waiting on the
// relay.
func (s State) Settled() bool {
	return s.Connected && s.InFlight == 0 && s.Queued == 0
}

type inbound struct {
	gen uint64
	msg *ws.Message
	err error
}

type dialResult struct {
	conn *websocket.Conn
	err  error
}

// Agent keeps one participant in sync with a board. All renderer access and
// all writes to the connection happen on the goroutine running Run.
type Agent struct {
	opts     Options
	renderer render.Renderer
	raster   *render.Raster

	local   chan model.BoardEvent
	calls   chan func()
	inbound chan inbound
	dialed  chan dialResult

	started atomic.Bool
	done    chan struct{}
	idleMu  sync.Mutex

	stateMu sync.RWMutex
	state   State

	// Owned by the loop
	conn      *websocket.Conn
	gen       uint64
	replayed  bool
	connects  int
	clientID  string
	boardID   string
	width     int
	height    int
	confirmed []model.BoardEvent
	lastSeq   uint64
	inFlight  []model.BoardEvent
	outbox    *buffer.RingBuffer[model.BoardEvent]
	dirty     bool
	unacked   int
	rejected  int
	submitted int
	redraws   int
}

// New creates an agent. Nothing is dialed until Run.
func New(opts Options) (*Agent, error) {
	if opts.URL == "" {
		return nil, errors.New("agent: URL is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaultOutboxSize
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.AckEvery <= 0 {
		opts.AckEvery = defaultAckEvery
	}

	a := &Agent{
		opts:     opts,
		renderer: opts.Renderer,
		local:    make(chan model.BoardEvent, submitBufferSize),
		calls:    make(chan func()),
		inbound:  make(chan inbound, inboundBufferSize),
		dialed:   make(chan dialResult),
		done:     make(chan struct{}),
		outbox:   buffer.NewRingBuffer[model.BoardEvent](opts.OutboxSize),
	}
	if a.renderer == nil {
		a.raster = render.NewRaster(model.DefaultBoardWidth, model.DefaultBoardHeight)
		a.renderer = a.raster
	}
	return a, nil
}

// AttachURL builds the WebSocket endpoint of a board from the relay's base
// address. clientID and token are optional.
func AttachURL(server, boardID, clientID, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server address: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u = u.JoinPath("api", "boards", boardID, "attach")

	q := u.Query()
	if clientID != "" {
		q.Set("clientId", clientID)
	}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SubmitStroke draws seg locally and sends it to the relay, or queues it
// while offline. It does not wait for the network.
func (a *Agent) SubmitStroke(seg model.StrokeSegment) error {
	return a.enqueue(model.NewStrokeEvent(seg))
}

// SubmitClear wipes the local picture and sends the clear to the relay.
func (a *Agent) SubmitClear() error {
	return a.enqueue(model.NewClearEvent())
}

func (a *Agent) enqueue(ev model.BoardEvent) error {
	select {
	case <-a.done:
		return model.ErrAgentClosed
	default:
	}
	select {
	case a.local <- ev:
		return nil
	case <-a.done:
		return model.ErrAgentClosed
	}
}

// State returns the latest state published by the loop.
func (a *Agent) State() State {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state
}

// Inspect runs fn against the renderer on the agent's loop, or directly once
// the agent has stopped.
func (a *Agent) Inspect(ctx context.Context, fn func(r render.Renderer)) error {
	ran := make(chan struct{})
	call := func() {
		fn(a.renderer)
		close(ran)
	}

	select {
	case a.calls <- call:
	case <-a.done:
		a.idleMu.Lock()
		defer a.idleMu.Unlock()
		fn(a.renderer)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Raster returns the built-in raster, or nil when a Renderer was supplied.
// It is only safe to touch outside Inspect after Run has returned.
func (a *Agent) Raster() *render.Raster {
	return a.raster
}

// Done is closed when Run returns.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Run connects to the relay and keeps the agent in sync until ctx is
// cancelled, reconnecting whenever the connection drops. It can only be
// called once.
func (a *Agent) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return model.ErrAgentClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		a.dropConn()
		wg.Wait()
		a.publishState()
		close(a.done)
	}()

	var redial <-chan time.Time
	dial := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := a.opts.Dialer.DialContext(ctx, a.opts.URL, a.opts.Header)
			select {
			case a.dialed <- dialResult{conn: conn, err: err}:
			case <-ctx.Done():
				if conn != nil {
					conn.Close()
				}
			}
		}()
	}
	dial()

	for {
		a.publishState()

		select {
		case <-ctx.Done():
			return nil

		case res := <-a.dialed:
			if res.err != nil {
				log.Printf("Failed to connect to %s: %v", a.opts.URL, res.err)
				redial = time.After(a.opts.ReconnectDelay)
				continue
			}
			a.attach(ctx, &wg, res.conn)

		case <-redial:
			redial = nil
			dial()

		case in := <-a.inbound:
			// Take everything already read in one batch, then settle once.
			lost := a.receive(in)
			for n := len(a.inbound); n > 0; n-- {
				if a.receive(<-a.inbound) {
					lost = true
				}
			}
			if lost {
				redial = time.After(a.opts.ReconnectDelay)
			}
			a.settle()

		case ev := <-a.local:
			a.submit(ev)

		case fn := <-a.calls:
			fn()
		}
	}
}

// attach starts reading from a freshly dialed connection. Nothing is sent
// until the replay has been applied.
func (a *Agent) attach(ctx context.Context, wg *sync.WaitGroup, conn *websocket.Conn) {
	a.gen++
	a.conn = conn
	a.replayed = false
	a.connects++

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	wg.Add(1)
	go func(gen uint64) {
		defer wg.Done()
		a.readPump(ctx, gen, conn)
	}(a.gen)
}

// readPump forwards relay messages to the loop, tagged with the connection
// generation so that late messages from a replaced connection are ignored.
func (a *Agent) readPump(ctx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case a.inbound <- inbound{gen: gen, err: err}:
			case <-ctx.Done():
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Failed to parse relay message: %v", err)
			continue
		}

		select {
		case a.inbound <- inbound{gen: gen, msg: &msg}:
		case <-ctx.Done():
			return
		}
	}
}

// dropConn forgets the current connection. Events still in flight are
// discarded: they are either in the next replay or were lost.
func (a *Agent) dropConn() {
	if a.conn == nil {
		return
	}
	a.conn.Close()
	a.conn = nil
	a.gen++
	a.replayed = false
	if n := len(a.inFlight); n > 0 {
		log.Printf("Discarding %d unconfirmed events", n)
	}
	a.inFlight = nil
}

// receive handles one message from a read pump and reports whether it ended
// the current connection.
func (a *Agent) receive(in inbound) bool {
	if in.gen != a.gen {
		return false
	}
	if in.err != nil {
		log.Printf("Disconnected from board %s: %v", a.boardID, in.err)
		a.dropConn()
		return true
	}
	a.handle(in.msg)
	return false
}

func (a *Agent) handle(msg *ws.Message) {
	switch {
	case msg.Type == ws.MessageTypeReplay:
		a.onReplay(msg)
	case msg.IsEvent():
		a.onEvent(msg.Event())
	case msg.Type == ws.MessageTypeAccepted:
		a.onAccepted(msg.SequenceID)
	case msg.Type == ws.MessageTypeRejected:
		a.onRejected(msg.Error)
	case msg.Type == ws.MessageTypeError:
		log.Printf("Relay error on board %s: %s", a.boardID, msg.Error)
	}
}

// onReplay rebuilds the picture from the board's effective history, then
// resends what was drawn while offline on top of it.
func (a *Agent) onReplay(msg *ws.Message) {
	a.clientID = msg.ClientID
	a.boardID = msg.BoardID
	if err := model.CheckDimensions(msg.BoardWidth, msg.BoardHeight, model.MaxBoardWidth, model.MaxBoardHeight); err != nil {
		// Keep the current canvas; strokes outside it are clipped.
		log.Printf("Not resizing for board %s: %v", msg.BoardID, err)
	} else {
		if a.raster != nil {
			a.raster.Resize(msg.BoardWidth, msg.BoardHeight)
		}
		a.width = msg.BoardWidth
		a.height = msg.BoardHeight
	}

	a.confirmed = append([]model.BoardEvent(nil), msg.Events...)
	a.lastSeq = 0
	if n := len(a.confirmed); n > 0 {
		a.lastSeq = a.confirmed[n-1].SequenceID
	}
	a.inFlight = nil
	a.replayed = true
	a.redraw()

	for _, ev := range a.outbox.Drain() {
		a.renderer.Apply(ev)
		a.send(ev)
	}

	if a.lastSeq > 0 {
		a.sendAck()
	}
}

// onEvent applies a broadcast from another participant. While own events
// are in flight the broadcast is ordered before them, so the picture is
// marked dirty and rebuilt once they settle.
func (a *Agent) onEvent(ev model.BoardEvent) {
	a.confirm(ev)

	switch {
	case len(a.inFlight) == 0:
		a.renderer.Apply(ev)
	case ev.IsClear():
		a.renderer.Reset()
		for _, pending := range a.inFlight {
			a.renderer.Apply(pending)
		}
		a.dirty = true
	case !a.clearInFlight():
		a.renderer.Apply(ev)
		a.dirty = true
	default:
		// Hidden by an own clear that is still in flight.
		a.dirty = true
	}

	a.applied()
}

func (a *Agent) onAccepted(seq uint64) {
	if len(a.inFlight) == 0 {
		log.Printf("Ignoring receipt %d with nothing in flight", seq)
		return
	}
	ev := a.inFlight[0]
	a.inFlight = a.inFlight[1:]
	ev.SequenceID = seq
	ev.SourceClientID = a.clientID
	a.confirm(ev)
	a.applied()
}

// onRejected drops the oldest in-flight event. Its echo is removed once the
// rest have settled.
func (a *Agent) onRejected(reason string) {
	if len(a.inFlight) == 0 {
		log.Printf("Relay rejected a message: %s", reason)
		return
	}
	ev := a.inFlight[0]
	a.inFlight = a.inFlight[1:]
	a.rejected++
	log.Printf("Relay rejected %s: %s", ev, reason)

	a.dirty = true
}

func (a *Agent) submit(ev model.BoardEvent) {
	a.submitted++
	a.renderer.Apply(ev)

	if a.conn == nil || !a.replayed {
		if a.outbox.Push(ev) {
			log.Printf("Outbox full, dropped the oldest queued event")
		}
		return
	}
	a.send(ev)
}

// send writes ev to the relay. An event that could not be written goes back
// to the outbox for the next connection.
func (a *Agent) send(ev model.BoardEvent) {
	if err := a.write(ws.EventMessage(ev)); err != nil {
		log.Printf("Failed to send %s: %v", ev, err)
		a.outbox.Push(ev)
		return
	}
	a.inFlight = append(a.inFlight, ev)
}

func (a *Agent) sendAck() {
	a.unacked = 0
	if err := a.write(&ws.Message{Type: ws.MessageTypeAck, SequenceID: a.lastSeq}); err != nil {
		log.Printf("Failed to ack %d: %v", a.lastSeq, err)
	}
}

// write sends one frame. A failed write closes the connection and the read
// pump reports the disconnect.
func (a *Agent) write(msg *ws.Message) error {
	if a.conn == nil {
		return errNotConnected
	}
	a.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := a.conn.WriteJSON(msg); err != nil {
		a.conn.Close()
		return err
	}
	return nil
}

// confirm records an event in relay order, keeping only the effective
// history.
func (a *Agent) confirm(ev model.BoardEvent) {
	if ev.IsClear() {
		a.confirmed = []model.BoardEvent{ev}
	} else {
		a.confirmed = append(a.confirmed, ev)
	}
	a.lastSeq = ev.SequenceID
}

func (a *Agent) applied() {
	a.unacked++
	if a.unacked >= a.opts.AckEvery {
		a.sendAck()
	}
}

func (a *Agent) clearInFlight() bool {
	for _, ev := range a.inFlight {
		if ev.IsClear() {
			return true
		}
	}
	return false
}

// settle rebuilds a dirty picture once nothing of ours is in flight.
func (a *Agent) settle() {
	if a.dirty && len(a.inFlight) == 0 {
		a.redraw()
	}
}

// redraw folds the confirmed log and anything still in flight over a blank
// canvas.
func (a *Agent) redraw() {
	a.renderer.Reset()
	for _, ev := range a.confirmed {
		a.renderer.Apply(ev)
	}
	for _, ev := range a.inFlight {
		a.renderer.Apply(ev)
	}
	a.dirty = false
	a.redraws++
}

func (a *Agent) publishState() {
	s := State{
		Connected:      a.conn != nil && a.replayed,
		ClientID:       a.clientID,
		BoardID:        a.boardID,
		Width:          a.width,
		Height:         a.height,
		LastSequenceID: a.lastSeq,
		Confirmed:      len(a.confirmed),
		InFlight:       len(a.inFlight),
		Queued:         a.outbox.Len(),
		Dropped:        a.outbox.Dropped(),
		Rejected:       a.rejected,
		Submitted:      a.submitted,
		Connects:       a.connects,
		Redraws:        a.redraws,
	}

	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}
