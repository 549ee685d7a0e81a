package sse_test

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/CZERTAINLY/leadseeker/internal/sse"
	"github.com/stretchr/testify/require"
)

func TestDecoder_SplitFrame(t *testing.T) {
	t.Parallel()
	var dec sse.Decoder

	frames := dec.Push("data: {\"type\":\"a\"}\n\n" + "data: {\"typ")
	require.Equal(t, []string{`data: {"type":"a"}`}, frames)

	frames = dec.Push("e\":\"b\"}\n\n")
	require.Equal(t, []string{`data: {"type":"b"}`}, frames)
	require.Empty(t, dec.Flush())
}

func TestDecoder(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		name   string
		chunks []string
		frames []string
		flush  []string
	}{
		{
			name:   "empty chunk",
			chunks: []string{""},
		},
		{
			name:   "many frames in one chunk",
			chunks: []string{"data: 1\n\ndata: 2\n\ndata: 3\n\n"},
			frames: []string{"data: 1", "data: 2", "data: 3"},
		},
		{
			name:   "multi line frame",
			chunks: []string{"event: x\ndata: 1\ndata: 2\n\n"},
			frames: []string{"event: x\ndata: 1\ndata: 2"},
		},
		{
			name:   "crlf split between chunks",
			chunks: []string{"data: 1\r", "\n\r", "\ndata: 2\r\n\r\n"},
			frames: []string{"data: 1", "data: 2"},
		},
		{
			name:   "missing final separator",
			chunks: []string{"data: 1\n\ndata: 2\n"},
			frames: []string{"data: 1"},
			flush:  []string{"data: 2"},
		},
		{
			name:   "blank frames are dropped",
			chunks: []string{"\n\n\n\ndata: 1\n\n"},
			frames: []string{"data: 1"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var dec sse.Decoder
			var frames []string
			for _, chunk := range tc.chunks {
				frames = append(frames, dec.Push(chunk)...)
			}
			require.Equal(t, tc.frames, frames)
			require.Equal(t, tc.flush, dec.Flush())
		})
	}
}

// chunk boundaries must not change the decoded frames
func TestDecoder_ChunkBoundaries(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	for i := range 50 {
		fmt.Fprintf(&sb, "data: {\"type\":\"item-found\",\"item\":{\"id\":\"c-%d\",\"name\":\"Česká %d\"}}\r\n\r\n", i, i)
		if i%7 == 0 {
			sb.WriteString(": heartbeat\n\n")
		}
	}
	stream := sb.String()

	decodeAll := func(chunks []string) []string {
		var dec sse.Decoder
		var frames []string
		for _, c := range chunks {
			frames = append(frames, dec.Push(c)...)
		}
		return append(frames, dec.Flush()...)
	}

	want := decodeAll([]string{stream})
	require.Len(t, want, 50+8)

	t.Run("byte at a time", func(t *testing.T) {
		chunks := make([]string, 0, len(stream))
		for i := range len(stream) {
			chunks = append(chunks, stream[i:i+1])
		}
		require.Equal(t, want, decodeAll(chunks))
	})

	t.Run("random chunks", func(t *testing.T) {
		rnd := rand.New(rand.NewPCG(42, 7))
		for range 100 {
			var chunks []string
			rest := stream
			for rest != "" {
				n := min(1+rnd.IntN(64), len(rest))
				chunks = append(chunks, rest[:n])
				rest = rest[n:]
			}
			require.Equal(t, want, decodeAll(chunks))
		}
	})
}

func TestDecoder_LargeFrameInSmallChunks(t *testing.T) {
	t.Parallel()
	payload := strings.Repeat("x", 1<<20)
	stream := "data: " + payload + "\r\n\r\ndata: 2\r\n\r\n"

	var dec sse.Decoder
	var frames []string
	for rest := stream; rest != ""; {
		n := min(3, len(rest))
		frames = append(frames, dec.Push(rest[:n])...)
		rest = rest[n:]
	}
	require.Equal(t, []string{"data: " + payload, "data: 2"}, frames)
	require.Empty(t, dec.Flush())
}
