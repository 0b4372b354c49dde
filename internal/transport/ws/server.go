package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pipegrid.ai/internal/protocol"
	"pipegrid.ai/internal/sim/world"
)

// requestTimeout bounds how long one client request may wait for the world loop.
const requestTimeout = 5 * time.Second

// Server is the client control socket: structure registration and network queries.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 16)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Requests are served in order, one at a time.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := s.handle(ctx, msg)
			b, err := json.Marshal(reply)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	}
}

// handle decodes one client message and returns the reply to send.
func (s *Server) handle(ctx context.Context, msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError(protocol.ErrProtoBadRequest, "malformed json")
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError(protocol.ErrProtoBadRequest, fmt.Sprintf("unsupported protocol_version %q", base.ProtocolVersion))
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch base.Type {
	case protocol.TypeRegister:
		var m protocol.RegisterStructureMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.NewError(protocol.ErrProtoBadRequest, err.Error())
		}
		info, err := s.world.RequestRegister(ctx, world.StructureSpec{
			ID:       m.ID,
			Def:      m.Def,
			Pos:      m.Pos,
			Rotation: m.Rotation,
			Contents: m.Contents,
		})
		if err != nil {
			return protocol.NewError(world.ErrorCode(err), err.Error())
		}
		return protocol.StructureMsg{
			Type:            protocol.TypeStructure,
			ProtocolVersion: protocol.Version,
			Tick:            s.world.CurrentTick(),
			Structure:       info,
		}

	case protocol.TypeDeregister:
		var m protocol.DeregisterStructureMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.NewError(protocol.ErrProtoBadRequest, err.Error())
		}
		if err := s.world.RequestDeregister(ctx, m.ID); err != nil {
			return protocol.NewError(world.ErrorCode(err), err.Error())
		}
		return protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			Tick:            s.world.CurrentTick(),
			Ref:             protocol.TypeDeregister,
			ID:              m.ID,
		}

	case protocol.TypeStructure:
		var m protocol.DeregisterStructureMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.NewError(protocol.ErrProtoBadRequest, err.Error())
		}
		info, err := s.world.RequestStructure(ctx, m.ID)
		if err != nil {
			return protocol.NewError(world.ErrorCode(err), err.Error())
		}
		return protocol.StructureMsg{
			Type:            protocol.TypeStructure,
			ProtocolVersion: protocol.Version,
			Tick:            s.world.CurrentTick(),
			Structure:       info,
		}

	case protocol.TypeNetworks:
		nm, err := s.world.RequestNetworks(ctx)
		if err != nil {
			return protocol.NewError(world.ErrorCode(err), err.Error())
		}
		return nm

	default:
		return protocol.NewError(protocol.ErrProtoBadRequest, fmt.Sprintf("unknown type %q", base.Type))
	}
}
