package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Envelope é o formato de toda mensagem trocada no socket
type Envelope struct {
	OpCode match.OpCode    `json:"opCode"`
	Data   json.RawMessage `json:"data"`
}

// ErrorFrame é enviado ao cliente quando uma mensagem é rejeitada
type ErrorFrame struct {
	OpCode match.OpCode `json:"opCode"`
	Error  string       `json:"error"`
}

// Coordinator é o lado do registry usado pelo transporte
type Coordinator interface {
	Snapshot(ctx context.Context, matchID string) (match.Snapshot, error)
	Submit(ctx context.Context, matchID, userID string, op match.OpCode, data []byte) error
	Leave(ctx context.Context, matchID, userID string) error
	Reconnect(ctx context.Context, matchID, userID string) (*match.ReadyPayload, error)
}

type client struct {
	conn    *websocket.Conn
	matchID string
	userID  string
	send    chan []byte
	once    sync.Once
}

func (c *client) close() { c.once.Do(func() { close(c.send) }) }

// Hub gerencia as conexões WebSocket por partida e implementa match.Dispatcher
// rooms: mapeia matchID para o conjunto de clientes conectados
type Hub struct {
	upgrader websocket.Upgrader
	coord    Coordinator
	log      *zap.Logger

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(coord Coordinator, log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		coord:    coord,
		log:      log,
		rooms:    make(map[string]map[*client]struct{}),
	}
}

// AllowOrigins monta a verificação de origem do upgrade. "*" aceita qualquer
// origem; requisições sem header Origin (clientes nativos) são aceitas.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// SetCoordinator liga o hub ao registry depois da construção
func (h *Hub) SetCoordinator(c Coordinator) { h.coord = c }

// connected retorna quantas conexões estão abertas na partida
func (h *Hub) connected(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

// Broadcast envia a mensagem a todos os clientes da partida. Clientes lentos
// (buffer cheio) são desconectados em vez de travar a partida.
func (h *Hub) Broadcast(_ context.Context, matchID string, op match.OpCode, payload []byte) error {
	b, err := json.Marshal(Envelope{OpCode: op, Data: payload})
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.rooms[matchID] {
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("ws client too slow, dropping", zap.String("match_id", matchID), zap.String("user_id", c.userID))
		_ = c.conn.Close()
	}
	return nil
}

// ServeMatch valida a participação, faz o upgrade e mantém a conexão.
// Cada conexão avisa a partida (o jogador volta a contar como presente) e,
// se ela já está em Ready, recebe o op 1 que pode ter perdido.
// Ao desconectar, a última conexão do usuário gera um leave na partida.
func (h *Hub) ServeMatch(w http.ResponseWriter, r *http.Request, matchID, userID string) {
	snap, err := h.coord.Snapshot(r.Context(), matchID)
	if errors.Is(err, match.ErrMatchNotFound) {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !snap.HasHuman(userID) {
		http.Error(w, "not a match participant", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, matchID: matchID, userID: userID, send: make(chan []byte, sendBuffer)}
	h.register(c)
	h.log.Info("ws connected", zap.String("match_id", matchID), zap.String("user_id", userID))

	go h.writeLoop(c)

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	ready, err := h.coord.Reconnect(ctx, matchID, userID)
	cancel()
	switch {
	case err != nil:
		h.log.Warn("ws attach rejected", zap.String("match_id", matchID), zap.String("user_id", userID), zap.Error(err))
		_ = conn.Close()
	case ready != nil:
		h.sendReady(c, ready)
	}

	h.readLoop(c)

	if last := h.unregister(c); last {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if err := h.coord.Leave(ctx, matchID, userID); err != nil &&
			!errors.Is(err, match.ErrMatchNotFound) && !errors.Is(err, match.ErrNotParticipant) {
			h.log.Warn("leave on disconnect failed", zap.String("match_id", matchID), zap.String("user_id", userID), zap.Error(err))
		}
	}
	h.log.Info("ws disconnected", zap.String("match_id", matchID), zap.String("user_id", userID))
}

func (h *Hub) readLoop(c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			var syntax *json.SyntaxError
			var typ *json.UnmarshalTypeError
			if errors.As(err, &syntax) || errors.As(err, &typ) {
				h.reply(c, ErrorFrame{Error: match.ErrInvalidPayload.Error()})
				continue
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := h.coord.Submit(ctx, c.matchID, c.userID, env.OpCode, env.Data)
		cancel()
		if err != nil {
			h.reply(c, ErrorFrame{OpCode: env.OpCode, Error: err.Error()})
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) sendReady(c *client, p *match.ReadyPayload) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	h.reply(c, Envelope{OpCode: match.OpMatchReady, Data: data})
}

func (h *Hub) reply(c *client, v any) {
	b, _ := json.Marshal(v)
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.rooms[c.matchID][c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[c.matchID]; !ok {
		h.rooms[c.matchID] = make(map[*client]struct{})
	}
	h.rooms[c.matchID][c] = struct{}{}
}

// unregister remove o cliente e indica se era a última conexão do usuário na partida
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[c.matchID]
	delete(room, c)
	c.close()
	last := true
	for other := range room {
		if other.userID == c.userID {
			last = false
			break
		}
	}
	if len(room) == 0 {
		delete(h.rooms, c.matchID)
	}
	return last
}
