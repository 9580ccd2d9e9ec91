// Package stream implements live pane-tail streaming over WebSocket: the
// supplemental feature (SPEC_FULL.md §C) that lets a viewer watch an
// agent's session output update in real time instead of polling
// getAgentLogs. One Hub goroutine per agent session polls the pane on
// the same cadence as the Output Monitor and fans out each changed
// capture to every subscribed client, so N viewers of the same agent
// cost one poll loop, not N.
package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/multiplexer"
)

// PollInterval is how often a session's pane is recaptured for tailing.
// Matches the Output Monitor's default poll cadence (§4.2) so a tailed
// pane and a synchronous wait never disagree about what "just changed"
// means.
const PollInterval = 500 * time.Millisecond

// Frame is one pushed update, encoded as JSON to every subscriber.
type Frame struct {
	SessionName string `json:"sessionName"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
}

// Hub owns the set of per-session pollers and their subscribed clients.
type Hub struct {
	driver multiplexer.Driver
	log    *logger.Logger

	mu       sync.Mutex
	sessions map[string]*sessionPoller
}

// NewHub creates a Hub that tails panes through driver.
func NewHub(driver multiplexer.Driver, log *logger.Logger) *Hub {
	return &Hub{
		driver:   driver,
		log:      log.WithComponent("stream"),
		sessions: make(map[string]*sessionPoller),
	}
}

type sessionPoller struct {
	sessionName string
	clients     map[*Client]struct{}
	cancel      context.CancelFunc
}

// Subscribe attaches client to sessionName's poller, starting one if this
// is the first subscriber.
func (h *Hub) Subscribe(client *Client, sessionName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.sessions[sessionName]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		p = &sessionPoller{sessionName: sessionName, clients: make(map[*Client]struct{}), cancel: cancel}
		h.sessions[sessionName] = p
		go h.poll(ctx, p)
	}
	p.clients[client] = struct{}{}
}

// Unsubscribe detaches client from sessionName's poller, stopping the
// poller once its last subscriber leaves.
func (h *Hub) Unsubscribe(client *Client, sessionName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.sessions[sessionName]
	if !ok {
		return
	}
	delete(p.clients, client)
	if len(p.clients) == 0 {
		p.cancel()
		delete(h.sessions, sessionName)
	}
}

func (h *Hub) poll(ctx context.Context, p *sessionPoller) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var lastText string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			text, err := h.driver.CapturePane(ctx, p.sessionName, 500)
			if err != nil {
				h.log.Warn("pane capture failed during tail", zap.String("session", p.sessionName), zap.Error(err))
				continue
			}
			if text == lastText {
				continue
			}
			lastText = text

			frame := Frame{SessionName: p.sessionName, Text: text, Timestamp: time.Now().Unix()}
			h.broadcast(p, frame)
		}
	}
}

func (h *Hub) broadcast(p *sessionPoller, frame Frame) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(p.clients))
	for c := range p.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if !c.send(frame) {
			h.log.Warn("dropping slow stream client", zap.String("session", p.sessionName))
		}
	}
}
