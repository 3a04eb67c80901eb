package server

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"github.com/Skryldev/mockup-studio/editor"
	apperrors "github.com/Skryldev/mockup-studio/errors"
	"github.com/Skryldev/mockup-studio/gesture"
)

func room(sessionID string) socketio.Room { return socketio.Room("session:" + sessionID) }

func (s *Server) setupSocketIO() *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(s.cfg.MaxUploadBytes)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	origins := make([]any, 0, len(s.cfg.AllowedOrigins))
	for _, o := range s.cfg.AllowedOrigins {
		origins = append(origins, o)
	}
	opts.SetCors(&types.Cors{Origin: origins, Credentials: true})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // socket.io listeners return nothing useful
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		c := &client{server: s, socket: socket}
		s.logger.Debug("server.socket.connected", "socket", string(socket.Id()))

		socket.On("attach", c.attach)
		socket.On("view", c.view)
		socket.On("pointer", c.pointer(pointerCanvas))
		socket.On("panel-pointer", c.pointer(pointerPanel))
		socket.On("dock-pointer", c.pointer(pointerDock))
		socket.On("disconnect", func(...any) {
			c.detach()
			s.logger.Debug("server.socket.disconnected", "socket", string(socket.Id()))
		})
	})
	return srv
}

// client is one socket attached to at most one session.
type client struct {
	server *Server
	socket *socketio.Socket

	mu     sync.Mutex
	ed     *editor.Editor
	cancel func()
}

// attach subscribes the socket to a session's state. The current state is
// returned in the ack and every later change arrives as a "state" event.
func (c *client) attach(datas ...any) {
	ack, args := extractAck(datas)
	id, _ := first(args).(string)
	ed, ok := c.server.sessions.Get(id)
	if !ok {
		respond(ack, nil, apperrors.New(apperrors.CategoryInput, "socket.attach", apperrors.ErrNotFound))
		return
	}
	c.detach()
	socket := c.socket
	cancel := ed.Subscribe(func(st editor.State) {
		_ = socket.Emit("state", st)
	})
	c.mu.Lock()
	c.ed, c.cancel = ed, cancel
	c.mu.Unlock()
	socket.Join(room(id))

	st, err := ed.State()
	respond(ack, st, err)
}

func (c *client) detach() {
	c.mu.Lock()
	cancel := c.cancel
	c.ed, c.cancel = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *client) session() (*editor.Editor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ed == nil {
		return nil, apperrors.New(apperrors.CategoryInput, "socket.session", fmt.Errorf("not attached: %w", apperrors.ErrNotFound))
	}
	return c.ed, nil
}

func (c *client) view(datas ...any) {
	ack, args := extractAck(datas)
	ed, err := c.session()
	if err != nil {
		respond(ack, nil, err)
		return
	}
	var v editor.View
	if err := decodeArg(first(args), &v); err != nil {
		respond(ack, nil, err)
		return
	}
	respond(ack, nil, ed.SetView(v))
}

func (c *client) pointer(target pointerTarget) func(...any) {
	return func(datas ...any) {
		ack, args := extractAck(datas)
		ed, err := c.session()
		if err != nil {
			respond(ack, nil, err)
			return
		}
		var ev gesture.Event
		if err := decodeArg(first(args), &ev); err != nil {
			respond(ack, nil, err)
			return
		}
		changed, err := target.dispatch(ed, ev)
		respond(ack, map[string]any{"changed": changed}, err)
	}
}

// extractAck splits off the acknowledgement callback the client asked for.
func extractAck(datas []any) (socketio.Ack, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	if ack, ok := datas[len(datas)-1].(socketio.Ack); ok {
		return ack, datas[:len(datas)-1]
	}
	return nil, datas
}

func respond(ack socketio.Ack, payload any, err error) {
	if ack == nil {
		return
	}
	if err != nil {
		ack([]any{map[string]any{"status": "error", "error": apperrors.Message(err)}}, nil)
		return
	}
	reply := map[string]any{"status": "ok"}
	if payload != nil {
		reply["data"] = payload
	}
	ack([]any{reply}, nil)
}

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// decodeArg converts a decoded socket.io payload into v.
func decodeArg(arg any, v any) error {
	if arg == nil {
		return apperrors.New(apperrors.CategoryInput, "socket.decode", apperrors.ErrEmptyInput)
	}
	raw, err := json.Marshal(arg)
	if err == nil {
		err = json.Unmarshal(raw, v)
	}
	if err != nil {
		return badRequest("socket.decode", err)
	}
	return nil
}
