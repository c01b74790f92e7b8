// Package protocol implements the line protocol spoken with the display device.
//
// Outbound frames list the display set as alternating name and volume fields:
//
//	Main,40,Fire,65,Spot,0\n
//
// Inbound frames select a position in the most recently sent display set and
// carry the volume it should adopt:
//
//	1,80\n
package protocol

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bft-labs/mixlink/pkg/volume"
)

const (
	fieldSep = ","
	frameEnd = "\n"
)

var (
	// ErrEmptyLine marks a read that produced no data, normally a timeout.
	ErrEmptyLine = errors.New("protocol: empty line")
	// ErrMalformed marks a frame that does not parse as index,volume.
	ErrMalformed = errors.New("protocol: malformed frame")
	// ErrInvalidText marks a frame that is not valid UTF-8.
	ErrInvalidText = errors.New("protocol: invalid text")
)

// Update is a decoded control frame.
type Update struct {
	Index  int
	Volume int
}

// Encode renders entities as one outbound frame. Volumes are sampled from
// each entity while encoding.
func Encode(entities []volume.Entity, opts volume.NameOptions) string {
	var b strings.Builder
	for i, e := range entities {
		if i > 0 {
			b.WriteString(fieldSep)
		}
		b.WriteString(volume.DisplayName(e, opts))
		b.WriteString(fieldSep)
		b.WriteString(strconv.Itoa(e.Volume()))
	}
	b.WriteString(frameEnd)
	return b.String()
}

// Decode parses one inbound line. Fields past the second are ignored. The
// index range and the volume range are checked by the caller.
func Decode(line string) (Update, error) {
	if !utf8.ValidString(line) {
		return Update{}, ErrInvalidText
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Update{}, ErrEmptyLine
	}

	fields := strings.Split(line, fieldSep)
	if len(fields) < 2 {
		return Update{}, ErrMalformed
	}
	idx, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || idx < 0 {
		return Update{}, ErrMalformed
	}
	vol, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Update{}, ErrMalformed
	}
	return Update{Index: idx, Volume: vol}, nil
}
