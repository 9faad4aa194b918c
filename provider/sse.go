package provider

import (
	"bufio"
	"bytes"
	"io"

	"github.com/openai/openai-go/packages/ssestream"
)

// MaxFrameSize bounds a single SSE line. Backends that send whole tool
// arguments in one frame need far more than bufio's 64 KiB default.
const MaxFrameSize = 32 << 20

// eventDecoder is an ssestream.Decoder that reports read failures and
// oversized lines through Err instead of ending the stream silently.
type eventDecoder struct {
	rc  io.ReadCloser
	scn *bufio.Scanner
	evt ssestream.Event
	err error
}

var _ ssestream.Decoder = (*eventDecoder)(nil)

func newEventDecoder(rc io.ReadCloser, maxFrame int) *eventDecoder {
	scn := bufio.NewScanner(rc)
	scn.Buffer(make([]byte, 0, min(64<<10, maxFrame)), maxFrame)
	return &eventDecoder{rc: rc, scn: scn}
}

func (d *eventDecoder) Next() bool {
	if d.err != nil {
		return false
	}

	var (
		event string
		data  bytes.Buffer
	)
	for d.scn.Scan() {
		line := d.scn.Bytes()
		if len(line) == 0 {
			d.evt = ssestream.Event{Type: event, Data: bytes.Clone(data.Bytes())}
			return true
		}

		name, value, _ := bytes.Cut(line, []byte(":"))
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
		switch string(name) {
		case "":
			// comment
		case "event":
			event = string(value)
		case "data":
			data.Write(value)
			data.WriteByte('\n')
		}
	}
	// A partial event at EOF is discarded.
	d.err = d.scn.Err()
	return false
}

func (d *eventDecoder) Event() ssestream.Event { return d.evt }

func (d *eventDecoder) Close() error { return d.rc.Close() }

func (d *eventDecoder) Err() error { return d.err }
