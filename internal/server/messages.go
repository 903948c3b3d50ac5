package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/cryptoforum/internal/forum"
	"github.com/npezzotti/cryptoforum/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a request sent by a browser. Exactly one action field
// is expected.
type ClientMessage struct {
	BaseMessage
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Exit    *Exit    `json:"exit,omitempty"`
	Publish *Publish `json:"publish,omitempty"`
	React   *React   `json:"react,omitempty"`
	Remove  *Remove  `json:"remove,omitempty"`
	client  *Client
}

// Username returns the user the message was received from.
func (m *ClientMessage) Username() string {
	if m.client == nil {
		return ""
	}
	return m.client.user.Username
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type Exit struct{}

type Publish struct {
	RoomId     string            `json:"room_id"`
	MessageId  string            `json:"message_id,omitempty"`
	Text       string            `json:"text"`
	Attachment *types.Attachment `json:"attachment,omitempty"`
}

type React struct {
	ItemId string `json:"item_id"`
	Emoji  string `json:"emoji"`
}

type Remove struct {
	RoomId string `json:"room_id"`
	ItemId string `json:"item_id"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response    `json:"response,omitempty"`
	Notification *forum.Event `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

func response(id, code int, errMsg string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return response(id, http.StatusOK, "", data)
}

func NoErrAccepted(id int, data any) *ServerMessage {
	return response(id, http.StatusAccepted, "", data)
}

func ErrRoomNotFound(id int) *ServerMessage {
	return response(id, http.StatusNotFound, "room not found", nil)
}

func ErrNotJoined(id int) *ServerMessage {
	return response(id, http.StatusConflict, "not a member of this room", nil)
}

func ErrForbidden(id int) *ServerMessage {
	return response(id, http.StatusForbidden, "forbidden", nil)
}

func ErrBadRequest(id int, msg string) *ServerMessage {
	return response(id, http.StatusBadRequest, msg, nil)
}

func ErrInternalError(id int) *ServerMessage {
	return response(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := response(0, http.StatusBadRequest, "invalid message format", nil)
	if id > 0 {
		msg.Id = id
	}
	return msg
}

// errorResponse maps a forum error onto a response.
func errorResponse(id int, err error) *ServerMessage {
	var verr *forum.ValidationError
	switch {
	case errors.As(err, &verr):
		return ErrBadRequest(id, verr.Message)
	case errors.Is(err, forum.ErrRoomNotFound):
		return ErrRoomNotFound(id)
	case errors.Is(err, forum.ErrNotJoined):
		return ErrNotJoined(id)
	case errors.Is(err, forum.ErrForbidden):
		return ErrForbidden(id)
	default:
		return ErrInternalError(id)
	}
}

func notification(ev forum.Event) *ServerMessage {
	return &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &ev,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
