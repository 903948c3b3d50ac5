package server

import (
	"context"
	"sync"

	"github.com/npezzotti/cryptoforum/internal/forum"
	"github.com/npezzotti/cryptoforum/internal/logging"
	"github.com/npezzotti/cryptoforum/internal/stats"
	"github.com/rs/zerolog"
)

type stopReq struct {
	done chan struct{}
}

// ChatServer tracks live WebSocket clients and delivers forum events to
// them. It implements forum.Notifier.
type ChatServer struct {
	log            zerolog.Logger
	forum          *forum.Forum
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	userMap        map[string]map[*Client]struct{}
	clientsLock    sync.RWMutex
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	stop           chan stopReq
}

func NewChatServer(logger zerolog.Logger, su stats.StatsProvider) *ChatServer {
	su.RegisterMetric(stats.MetricConnectedClients)

	return &ChatServer{
		log:            logger,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[string]map[*Client]struct{}),
		RegisterChan:   make(chan *Client, 16),
		deRegisterChan: make(chan *Client, 16),
		stop:           make(chan stopReq),
	}
}

// SetForum attaches the forum the server dispatches client requests to.
// The forum needs the server as its notifier, so the two are wired after
// construction.
func (cs *ChatServer) SetForum(f *forum.Forum) {
	cs.forum = f
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.RegisterChan:
			cs.log.Debug().Str(logging.FieldUsername, client.user.Username).Msg("adding connection")
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Debug().Str(logging.FieldUsername, client.user.Username).Msg("removing connection")
			if cs.removeClient(client) && cs.forum != nil {
				// nobody is looking at the room any more
				cs.forum.ExitRoom(client.user.Username)
			}
		case req := <-cs.stop:
			cs.log.Info().Msg("disconnecting clients")
			cs.clientsLock.RLock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.RUnlock()

			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; ok {
		return
	}
	cs.clients[c] = struct{}{}
	if cs.userMap[c.user.Username] == nil {
		cs.userMap[c.user.Username] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Username][c] = struct{}{}
	cs.stats.Incr(stats.MetricConnectedClients)
}

// removeClient drops c and reports whether it was the user's last
// connection.
func (cs *ChatServer) removeClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return false
	}
	delete(cs.clients, c)
	cs.stats.Decr(stats.MetricConnectedClients)

	userClients := cs.userMap[c.user.Username]
	delete(userClients, c)
	if len(userClients) > 0 {
		return false
	}
	delete(cs.userMap, c.user.Username)
	return true
}

func (cs *ChatServer) getClients(username string) []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.userMap[username]))
	for c := range cs.userMap[username] {
		clients = append(clients, c)
	}
	return clients
}

// Notify queues ev on every connection of username. It never blocks; a
// client whose queue is full misses the event.
func (cs *ChatServer) Notify(username string, ev forum.Event) {
	for _, c := range cs.getClients(username) {
		c.queueMessage(notification(ev))
	}
}

// Shutdown disconnects every client and stops Run.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info().Msg("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
