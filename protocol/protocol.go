package protocol

import (
	"bytes"
	"errors"
	"sort"
	"strconv"
	"strings"
)

// STOMP 1.2 commands used by the live channel.
const (
	CmdConnect     = "CONNECT"
	CmdStomp       = "STOMP"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
)

// Channel routes.
const (
	DestSendMessage = "/app/chat.sendMessage"
	DestTyping      = "/app/chat.typing"
)

// InboxRoute returns the personal inbound route of a user.
func InboxRoute(userID string) string {
	return "/user/" + userID + "/queue/messages"
}

var (
	ErrInvalidFrame = errors.New("invalid frame format")
	ErrHeartbeat    = errors.New("heartbeat frame")
)

// Frame is a single STOMP frame.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// NewFrame builds a frame from alternating header key/value pairs.
func NewFrame(command string, body []byte, kv ...string) *Frame {
	f := &Frame{Command: command, Headers: make(map[string]string, len(kv)/2), Body: body}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers[kv[i]] = kv[i+1]
	}
	return f
}

// Header returns a header value or "".
func (f *Frame) Header(key string) string {
	if f.Headers == nil {
		return ""
	}
	return f.Headers[key]
}

// ParseFrame decodes one frame. A payload made only of EOLs is a heartbeat.
func ParseFrame(data []byte) (*Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return nil, ErrHeartbeat
	}

	headEnd := bytes.Index(data, []byte("\n\n"))
	sepLen := 2
	if crlf := bytes.Index(data, []byte("\r\n\r\n")); crlf >= 0 && (headEnd < 0 || crlf < headEnd) {
		headEnd = crlf
		sepLen = 4
	}
	if headEnd < 0 {
		return nil, ErrInvalidFrame
	}

	lines := strings.Split(strings.ReplaceAll(string(data[:headEnd]), "\r\n", "\n"), "\n")
	f := &Frame{Command: lines[0], Headers: make(map[string]string, len(lines)-1)}
	if f.Command == "" {
		return nil, ErrInvalidFrame
	}
	raw := f.Command == CmdConnect || f.Command == CmdConnected

	for _, line := range lines[1:] {
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return nil, ErrInvalidFrame
		}
		key, value := line[:idx], line[idx+1:]
		if !raw {
			key, value = unescapeHeader(key), unescapeHeader(value)
		}
		// Repeated headers: the first occurrence wins.
		if _, ok := f.Headers[key]; !ok {
			f.Headers[key] = value
		}
	}

	body := data[headEnd+sepLen:]
	if cl := f.Headers["content-length"]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n > len(body) {
			return nil, ErrInvalidFrame
		}
		body = body[:n]
	} else if nul := bytes.IndexByte(body, 0); nul >= 0 {
		body = body[:nul]
	}
	f.Body = append([]byte(nil), body...)
	return f, nil
}

// FormatFrame encodes a frame. Headers are written in sorted order.
func FormatFrame(f *Frame) []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	raw := f.Command == CmdConnect || f.Command == CmdConnected
	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		if k == "content-length" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := f.Headers[k]
		if !raw {
			k, v = EscapeHeader(k), EscapeHeader(v)
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		buf.WriteString("content-length:")
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// EscapeHeader escapes the characters STOMP 1.2 reserves in header octets.
func EscapeHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			result.WriteString(`\\`)
		case ':':
			result.WriteString(`\c`)
		case '\n':
			result.WriteString(`\n`)
		case '\r':
			result.WriteString(`\r`)
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}

// unescapeHeader reverses EscapeHeader. Unknown escapes are kept as is.
func unescapeHeader(s string) string {
	var result strings.Builder
	escape := false

	for _, r := range s {
		if escape {
			switch r {
			case '\\':
				result.WriteRune('\\')
			case 'c':
				result.WriteRune(':')
			case 'n':
				result.WriteRune('\n')
			case 'r':
				result.WriteRune('\r')
			default:
				result.WriteRune('\\')
				result.WriteRune(r)
			}
			escape = false
			continue
		}
		if r == '\\' {
			escape = true
			continue
		}
		result.WriteRune(r)
	}
	if escape {
		result.WriteRune('\\')
	}
	return result.String()
}
