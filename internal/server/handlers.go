package server

import (
	"github.com/npezzotti/cryptoforum/internal/forum"
	"github.com/npezzotti/cryptoforum/internal/logging"
	"github.com/npezzotti/cryptoforum/internal/types"
)

// dispatch applies one client request to the forum and returns the
// response for the sender. Events for other users flow through Notify.
func (cs *ChatServer) dispatch(msg *ClientMessage) *ServerMessage {
	switch {
	case msg.Join != nil:
		return cs.handleJoin(msg)
	case msg.Leave != nil:
		return cs.handleLeave(msg)
	case msg.Exit != nil:
		cs.forum.ExitRoom(msg.Username())
		return NoErrOK(msg.Id, nil)
	case msg.Publish != nil:
		return cs.handlePublish(msg)
	case msg.React != nil:
		return cs.handleReact(msg)
	case msg.Remove != nil:
		return cs.handleRemove(msg)
	default:
		return ErrInvalidMessage(msg.Id)
	}
}

type joinResult struct {
	RoomId string       `json:"room_id"`
	Items  []types.Item `json:"items"`
}

func (cs *ChatServer) handleJoin(msg *ClientMessage) *ServerMessage {
	roomId := msg.Join.RoomId
	if err := cs.forum.JoinRoom(msg.Username(), roomId); err != nil {
		return errorResponse(msg.Id, err)
	}

	items, err := cs.forum.Messages(roomId)
	if err != nil {
		return errorResponse(msg.Id, err)
	}

	cs.log.Debug().Str(logging.FieldUsername, msg.Username()).Str(logging.FieldRoomId, roomId).Msg("joined room")
	return NoErrOK(msg.Id, joinResult{RoomId: roomId, Items: items})
}

func (cs *ChatServer) handleLeave(msg *ClientMessage) *ServerMessage {
	if err := cs.forum.LeaveRoom(msg.Username(), msg.Leave.RoomId); err != nil {
		return errorResponse(msg.Id, err)
	}
	return NoErrOK(msg.Id, nil)
}

func (cs *ChatServer) handlePublish(msg *ClientMessage) *ServerMessage {
	p := msg.Publish
	item, err := cs.forum.SendMessage(msg.Username(), p.RoomId, forum.SendParams{
		Id:         p.MessageId,
		Text:       p.Text,
		Attachment: p.Attachment,
	})
	if err != nil {
		cs.log.Debug().Err(err).Str(logging.FieldUsername, msg.Username()).Str(logging.FieldRoomId, p.RoomId).Msg("publish rejected")
		return errorResponse(msg.Id, err)
	}
	return NoErrAccepted(msg.Id, item)
}

func (cs *ChatServer) handleReact(msg *ClientMessage) *ServerMessage {
	reactions, ok := cs.forum.React(msg.Username(), msg.React.ItemId, msg.React.Emoji)
	if !ok {
		// nothing to react to; not an error
		return NoErrOK(msg.Id, nil)
	}
	return NoErrOK(msg.Id, reactions)
}

func (cs *ChatServer) handleRemove(msg *ClientMessage) *ServerMessage {
	if err := cs.forum.RemoveMessage(msg.Username(), msg.Remove.RoomId, msg.Remove.ItemId); err != nil {
		return errorResponse(msg.Id, err)
	}
	return NoErrOK(msg.Id, nil)
}
