// ABOUTME: Delimiter-framed record decoding into tagged Frame values
// ABOUTME: Malformed or empty records become KindDropped and never surface as errors

package chathub

import (
	"strings"

	"github.com/tidwall/gjson"
)

// RecordSeparator terminates every record on the wire.
const RecordSeparator = "\x1e"

// Kind tags a decoded record.
type Kind int

const (
	KindDropped Kind = iota
	KindHandshakeAck
	KindDelta
	KindTerminal
	KindPing
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindDropped:
		return "dropped"
	case KindHandshakeAck:
		return "handshake_ack"
	case KindDelta:
		return "delta"
	case KindTerminal:
		return "terminal"
	case KindPing:
		return "ping"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Wire record types.
const (
	TypeDelta      = 1
	TypeTerminal   = 2
	TypeInvocation = 4
	TypePing       = 6
)

// Frame is one decoded record.
type Frame struct {
	Kind Kind
	Type int
	Raw  string
	Data gjson.Result
}

// DecodeRecords splits a delivery on RecordSeparator and decodes each record
// independently. Dropped records are filtered out and counted.
func DecodeRecords(data []byte) (frames []Frame, dropped int) {
	for _, rec := range strings.Split(string(data), RecordSeparator) {
		if strings.TrimSpace(rec) == "" {
			continue
		}
		f := DecodeRecord(rec)
		if f.Kind == KindDropped {
			dropped++
			continue
		}
		frames = append(frames, f)
	}
	return frames, dropped
}

// DecodeRecord decodes a single record.
func DecodeRecord(rec string) Frame {
	if !gjson.Valid(rec) {
		return Frame{Kind: KindDropped, Raw: rec}
	}
	data := gjson.Parse(rec)
	if !data.IsObject() {
		return Frame{Kind: KindDropped, Raw: rec}
	}

	f := Frame{Raw: rec, Data: data}
	if isEmptyObject(data) {
		f.Kind = KindHandshakeAck
		return f
	}

	typ := data.Get("type")
	if !typ.Exists() {
		f.Kind = KindOther
		return f
	}
	f.Type = int(typ.Int())
	switch f.Type {
	case TypeDelta:
		f.Kind = KindDelta
	case TypeTerminal:
		f.Kind = KindTerminal
	case TypePing:
		f.Kind = KindPing
	default:
		f.Kind = KindOther
	}
	return f
}

func isEmptyObject(r gjson.Result) bool {
	empty := true
	r.ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}
