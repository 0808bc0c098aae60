package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/chandan989/StrideOn/server/game"
	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
	maxNameLen        = 16
	maxSessionNameLen = 30
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	session    *Session
	role       string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
	// Auth state
	authRunnerID int64  // 0 = guest
	authUsername string // "" = guest
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("ws read error", "addr", c.remoteAddr, "err", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			c.hub.log.Warn("rate limit exceeded, disconnecting", "addr", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF prefix marks binary frames from SendBinary
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Error("marshal outgoing message", "err", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF marker byte so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.hub.log.Debug("bad envelope", "addr", c.remoteAddr, "err", err)
		return
	}

	switch env.T {
	case MsgList:
		c.handleList()
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgPos:
		c.handlePos(env.D)
	case MsgLeave:
		c.detach()
	case MsgEnd:
		c.handleEnd()
	case MsgRestart:
		c.handleRestart()
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgProfile:
		c.handleProfile()
	default:
		c.sendError("unknown message type")
	}
}

func (c *Client) handleList() {
	c.SendJSON(Envelope{T: MsgSessions, Data: c.hub.sessions.ListSessions()})
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	owner := c.authUsername
	if owner == "" {
		owner = cleanName(msg.Name, maxNameLen, "Runner")
	}
	sname := cleanName(msg.SessionName, maxSessionNameLen, "Morning Run")

	sess, err := c.hub.sessions.CreateSession(sname, owner, c.authRunnerID)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.hub.log.Info("session created", "session", sess.ID, "owner", owner)
	c.SendJSON(Envelope{T: MsgCreated, Data: map[string]string{"sid": sess.ID}})
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	role := msg.Role
	if role == "" {
		role = RoleViewer
	}

	sess := c.hub.sessions.GetSession(msg.SessionID)
	if sess == nil {
		c.sendError(ErrSessionNotFound.Error())
		return
	}
	if c.session != nil && c.session != sess {
		c.detach()
	}
	if err := sess.Attach(c, role, c.authRunnerID); err != nil {
		c.sendError(err.Error())
		return
	}
	c.session = sess
	c.role = role

	evt := EvtViewerJoin
	if role == RoleRunner {
		evt = EvtRunnerJoin
	}
	c.hub.analytics.Track(evt, c.authRunnerID, sess.ID, "")

	c.SendJSON(Envelope{T: MsgJoined, Data: JoinedMsg{SessionID: sess.ID, Role: role}})
	c.SendJSON(Envelope{T: MsgWelcome, Data: sess.Welcome(role)})
	if st := sess.Snapshot(); st != nil {
		if frame, err := EncodeState(st); err == nil {
			c.SendBinary(frame)
		}
	}
	if ended := sess.Ended(); ended != nil {
		c.SendJSON(Envelope{T: MsgEnded, Data: ended})
	}
}

func (c *Client) handlePos(data json.RawMessage) {
	if c.session == nil || c.role != RoleRunner {
		c.sendError("not the runner of a session")
		return
	}
	var msg PosMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	err := c.session.SubmitPosition(msg.Lat, msg.Lng, msg.Time())
	switch {
	case err == nil:
	case errors.Is(err, game.ErrStaleFix):
		// out-of-order fixes from the phone are expected; drop quietly
	default:
		c.sendError(err.Error())
	}
}

func (c *Client) handleEnd() {
	if c.session == nil {
		return
	}
	if err := c.session.End(c, c.authRunnerID); err != nil {
		c.sendError(err.Error())
	}
}

func (c *Client) handleRestart() {
	if c.session == nil {
		return
	}
	if err := c.session.Restart(c, c.authRunnerID); err != nil {
		c.sendError(err.Error())
		return
	}
	c.SendJSON(Envelope{T: MsgWelcome, Data: c.session.Welcome(c.role)})
}

// detach removes the client from its session, if any
func (c *Client) detach() {
	if c.session == nil {
		return
	}
	c.session.Detach(c)
	c.session = nil
	c.role = ""
}

func (c *Client) sendAuthOK(token, username string, id int64) {
	c.authRunnerID = id
	c.authUsername = username
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    token,
		Username: username,
		RunnerID: id,
	}})
}

func (c *Client) handleRegister(data json.RawMessage) {
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendAuthOK(token, msg.Username, id)
}

func (c *Client) handleLogin(data json.RawMessage) {
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.hub.analytics.Track(EvtLogin, id, "", "")
	c.sendAuthOK(token, msg.Username, id)
}

func (c *Client) handleAuth(data json.RawMessage) {
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.sendError("invalid token")
		return
	}
	c.sendAuthOK(msg.Token, username, id)
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.authRunnerID == 0 {
		c.sendError("not authenticated")
		return
	}
	stats, err := c.hub.db.GetStats(c.authRunnerID)
	if err != nil || stats == nil {
		c.sendError("profile not found")
		return
	}
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username:    c.authUsername,
		DistanceKm:  stats.DistanceM / 1000,
		Calories:    stats.Calories,
		TerritoryM2: stats.TerritoryM2,
		Claims:      stats.Claims,
		CutsDealt:   stats.CutsDealt,
		CutsTaken:   stats.CutsTaken,
		Sessions:    stats.Sessions,
		Score:       stats.Score,
	}})
}
