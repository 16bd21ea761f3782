// Package protocol defines the framed string protocol spoken between the
// gateway and the datastore. A frame is a UTF-8 string with pipe-delimited
// fields: requests are `<id>|<type>|<args…>`, responses are
// `<id>|<error>|<fields…>` where an empty error means success.
package protocol

import (
	"strconv"
	"strings"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/core"
)

// Delimiter separates frame fields. Plain string fields must not contain it;
// blob fields are exempt and reassembled from the surrounding fields.
const Delimiter = "|"

// FieldType describes how a schema field is validated and reassembled.
type FieldType int

const (
	// FieldString is an ordinary string that must not contain the delimiter.
	FieldString FieldType = iota
	// FieldNumber is a decimal integer.
	FieldNumber
	// FieldBlob is an opaque payload that may itself contain the delimiter.
	// At most one blob may appear per message; the decoder folds any excess
	// splits back into it.
	FieldBlob
)

// Field is one named, typed slot in a message schema.
type Field struct {
	Name string
	Type FieldType
}

// Lane selects the delivery contract for a message type.
type Lane int

const (
	// LaneRequest messages expect exactly one correlated response frame.
	LaneRequest Lane = iota
	// LaneOneway messages are fire-and-forget and never produce a reply.
	LaneOneway
)

// MessageType names one of the five wire message types.
type MessageType string

const (
	TypeValidateAndLoad    MessageType = "VALIDATE_AND_LOAD"
	TypeGetCredits         MessageType = "GET_CREDITS"
	TypeUpdateUsage        MessageType = "UPDATE_USAGE"
	TypeSaveSession        MessageType = "SAVE_SESSION"
	TypeAppendConversation MessageType = "APPEND_CONVERSATION"
)

// Spec is the schema entry for one message type.
type Spec struct {
	Lane  Lane
	Args  []Field
	Reply []Field
}

// Schema enumerates every message type with its ordered request args and,
// for request/response types, its ordered response fields.
var Schema = map[MessageType]Spec{
	TypeValidateAndLoad: {
		Lane: LaneRequest,
		Args: []Field{{"apiKey", FieldString}, {"sessionId", FieldString}},
		Reply: []Field{
			{"accountId", FieldString},
			{"sessionData", FieldBlob},
			{"credits", FieldNumber},
		},
	},
	TypeGetCredits: {
		Lane:  LaneRequest,
		Args:  []Field{{"accountId", FieldString}},
		Reply: []Field{{"credits", FieldNumber}},
	},
	TypeUpdateUsage: {
		Lane: LaneOneway,
		Args: []Field{
			{"accountId", FieldString},
			{"sessionId", FieldString},
			{"provider", FieldString},
			{"inputTokens", FieldNumber},
			{"outputTokens", FieldNumber},
		},
	},
	TypeSaveSession: {
		Lane: LaneOneway,
		Args: []Field{
			{"accountId", FieldString},
			{"sessionId", FieldString},
			{"sessionData", FieldBlob},
		},
	},
	TypeAppendConversation: {
		Lane: LaneOneway,
		Args: []Field{
			{"accountId", FieldString},
			{"sessionId", FieldString},
			{"conversationData", FieldBlob},
		},
	},
}

// Request is a decoded request frame.
type Request struct {
	ID   string
	Type MessageType
	Args []string
}

// Response is a decoded response frame. Err is empty on success.
type Response struct {
	ID     string
	Err    string
	Fields []string
}

// EncodeRequest renders a request frame. The arg count must match the schema.
func EncodeRequest(r Request) (string, error) {
	spec, ok := Schema[r.Type]
	if !ok {
		return "", core.Newf(core.ErrIPCDecodeFailed, "unknown message type %q", r.Type)
	}
	if len(r.Args) != len(spec.Args) {
		return "", core.Newf(core.ErrIPCDecodeFailed, "%s: got %d args, schema wants %d", r.Type, len(r.Args), len(spec.Args))
	}
	parts := make([]string, 0, 2+len(r.Args))
	parts = append(parts, r.ID, string(r.Type))
	parts = append(parts, r.Args...)
	return strings.Join(parts, Delimiter), nil
}

// EncodeResponse renders a response frame for the given type. An empty
// errStr marks success. Error frames may still carry fields (NO_CREDITS
// reports accountId and the balance); their layout is error-specific and
// not schema-checked.
func EncodeResponse(typ MessageType, id, errStr string, fields []string) string {
	parts := make([]string, 0, 2+len(fields))
	parts = append(parts, id, errStr)
	parts = append(parts, fields...)
	return strings.Join(parts, Delimiter)
}

// DecodeRequest parses a request frame against the schema. Frames with fewer
// fields than the schema demands are rejected; extra delimiters inside a
// blob field are folded back into it.
func DecodeRequest(frame string) (Request, error) {
	head := strings.SplitN(frame, Delimiter, 3)
	if len(head) < 2 {
		return Request{}, core.New(core.ErrIPCDecodeFailed, "frame missing correlation id or type")
	}
	id, typ := head[0], MessageType(head[1])
	spec, ok := Schema[typ]
	if !ok {
		return Request{}, core.Newf(core.ErrIPCDecodeFailed, "unknown message type %q", typ)
	}
	rest := ""
	if len(head) == 3 {
		rest = head[2]
	}
	args, err := splitFields(typ, spec.Args, rest, len(head) == 3)
	if err != nil {
		return Request{}, err
	}
	return Request{ID: id, Type: typ, Args: args}, nil
}

// DecodeResponse parses a response frame against the expected type's reply
// schema. Error responses keep whatever fields the frame carries, split
// raw: their layout depends on the error, so the reply schema does not
// apply.
func DecodeResponse(expected MessageType, frame string) (Response, error) {
	spec, ok := Schema[expected]
	if !ok || spec.Lane != LaneRequest {
		return Response{}, core.Newf(core.ErrIPCInvalidResponse, "type %q has no response schema", expected)
	}
	head := strings.SplitN(frame, Delimiter, 3)
	if len(head) < 2 {
		return Response{}, core.New(core.ErrIPCDecodeFailed, "response frame missing error field")
	}
	resp := Response{ID: head[0], Err: head[1]}
	if resp.Err != "" {
		if len(head) == 3 && head[2] != "" {
			resp.Fields = strings.Split(head[2], Delimiter)
		}
		return resp, nil
	}
	rest := ""
	if len(head) == 3 {
		rest = head[2]
	}
	fields, err := splitFields(expected, spec.Reply, rest, len(head) == 3)
	if err != nil {
		return Response{}, err
	}
	resp.Fields = fields
	return resp, nil
}

// splitFields distributes the raw tail across the schema fields. Fields
// before the blob bind from the front, fields after it bind from the back,
// and whatever remains in the middle — delimiters included — is the blob.
func splitFields(typ MessageType, schema []Field, rest string, present bool) ([]string, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	if !present {
		return nil, core.Newf(core.ErrIPCDecodeFailed, "%s: frame has no fields, schema wants %d", typ, len(schema))
	}

	blobIdx := -1
	for i, f := range schema {
		if f.Type == FieldBlob {
			blobIdx = i
			break
		}
	}

	var parts []string
	if blobIdx < 0 {
		parts = strings.Split(rest, Delimiter)
		if len(parts) != len(schema) {
			return nil, core.Newf(core.ErrIPCDecodeFailed, "%s: got %d fields, schema wants %d", typ, len(parts), len(schema))
		}
	} else {
		all := strings.Split(rest, Delimiter)
		if len(all) < len(schema) {
			return nil, core.Newf(core.ErrIPCDecodeFailed, "%s: got %d fields, schema wants %d", typ, len(all), len(schema))
		}
		after := len(schema) - blobIdx - 1
		parts = make([]string, 0, len(schema))
		parts = append(parts, all[:blobIdx]...)
		parts = append(parts, strings.Join(all[blobIdx:len(all)-after], Delimiter))
		parts = append(parts, all[len(all)-after:]...)
	}

	for i, f := range schema {
		if f.Type != FieldNumber {
			continue
		}
		if _, err := strconv.ParseInt(parts[i], 10, 64); err != nil {
			return nil, core.Newf(core.ErrIPCDecodeFailed, "%s: field %s is not a decimal integer: %q", typ, f.Name, parts[i])
		}
	}
	return parts, nil
}

// Number parses a decoded numeric field. Decode has already validated it, so
// a failure here indicates caller misuse of the schema.
func Number(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// FormatNumber renders a numeric field.
func FormatNumber(n int64) string {
	return strconv.FormatInt(n, 10)
}
