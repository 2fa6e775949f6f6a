package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"chatsphere-client/internal/clienterr"
	"chatsphere-client/internal/models"
)

// ErrUnknownFrameType is returned when the envelope carries a tag this client
// does not understand. The caller is expected to log and drop the frame.
var ErrUnknownFrameType = errors.New("unknown frame type")

// DecodeError reports a frame that could not be turned into an Event. It is
// returned as a value, never thrown across the transport boundary, and is
// always wrapped with clienterr.KindProtocol by Decode.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses a wire frame into a typed inbound event.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, decodeErr(frame, err)
	}

	switch env.Type {
	case FrameConnectionEstablished:
		var ev ConnectionEstablishedEvent
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, decodeErr(frame, err)
		}
		return ev, nil

	case FrameMessage:
		var msg models.Message
		if err := unmarshalData(env.Data, &msg); err != nil {
			return nil, decodeErr(frame, err)
		}
		return MessageEvent{Message: msg}, nil

	case FrameOnlineUsers:
		// online_users carries a bare array as its data payload.
		var users []models.User
		if err := unmarshalData(env.Data, &users); err != nil {
			return nil, decodeErr(frame, err)
		}
		return OnlineUsersEvent{Users: users}, nil

	case FrameTyping:
		var ev TypingEvent
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, decodeErr(frame, err)
		}
		return ev, nil

	case FrameUserJoined, FrameUserLeft:
		var ev RoomPresenceEvent
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, decodeErr(frame, err)
		}
		ev.Joined = env.Type == FrameUserJoined
		return ev, nil

	case FrameConversationUpdated:
		var ev ConversationUpdatedEvent
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, decodeErr(frame, err)
		}
		return ev, nil

	case FrameError:
		var ev ErrorEvent
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, decodeErr(frame, err)
		}
		return ev, nil

	case FramePong:
		return PongEvent{Timestamp: env.Timestamp}, nil

	default:
		return nil, decodeErr(frame, fmt.Errorf("%w: %q", ErrUnknownFrameType, env.Type))
	}
}

func decodeErr(frame []byte, err error) error {
	return clienterr.New(clienterr.KindProtocol, "decode", &DecodeError{Frame: frame, Err: err})
}

func unmarshalData(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
