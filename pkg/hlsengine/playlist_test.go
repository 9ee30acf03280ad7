package hlsengine

import (
	"net/url"
	"testing"
	"time"

	"github.com/grafov/m3u8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectVariant(t *testing.T) {
	variant := func(uri string, bandwidth uint32, iframe bool) *m3u8.Variant {
		return &m3u8.Variant{URI: uri, VariantParams: m3u8.VariantParams{Bandwidth: bandwidth, Iframe: iframe}}
	}

	variants := []*m3u8.Variant{
		variant("360p.m3u8", 800000, false),
		variant("1080p.m3u8", 5000000, false),
		variant("720p.m3u8", 2000000, false),
		variant("iframes.m3u8", 100000, true),
	}

	tests := []struct {
		name         string
		maxBandwidth int
		want         string
	}{
		{name: "no cap picks highest", want: "1080p.m3u8"},
		{name: "cap picks best fit", maxBandwidth: 3000000, want: "720p.m3u8"},
		{name: "exact cap", maxBandwidth: 800000, want: "360p.m3u8"},
		{name: "cap below all picks lowest", maxBandwidth: 1000, want: "360p.m3u8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectVariant(variants, tt.maxBandwidth)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.URI)
		})
	}

	assert.Nil(t, selectVariant([]*m3u8.Variant{variant("iframes.m3u8", 1, true)}, 0))
	assert.Nil(t, selectVariant(nil, 0))
}

func TestPendingSegments(t *testing.T) {
	playlist, listType, err := decodePlaylist([]byte(mediaPlaylist(20, 4, true)))
	require.NoError(t, err)
	require.Equal(t, m3u8.MEDIA, listType)

	base, err := url.Parse("https://cdn.example.com/processed/42/720p/index.m3u8")
	require.NoError(t, err)

	refs := pendingSegments(base, playlist.(*m3u8.MediaPlaylist), 22)
	require.Len(t, refs, 2)

	assert.Equal(t, uint64(22), refs[0].seq)
	assert.Equal(t, "https://cdn.example.com/processed/42/720p/seg22.ts", refs[0].uri.String())
	assert.Equal(t, time.Second, refs[0].duration)
	assert.Equal(t, uint64(23), refs[1].seq)

	assert.Empty(t, pendingSegments(base, playlist.(*m3u8.MediaPlaylist), 24))
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{name: "mpeg-ts", data: []byte{0x47, 0x40, 0x00, 0x10}},
		{name: "fmp4 init", data: []byte("\x00\x00\x00\x18ftypiso6")},
		{name: "fmp4 fragment", data: []byte("\x00\x00\x00\x10moof\x00\x00")},
		{name: "packed audio", data: []byte("ID3\x04\x00")},
		{name: "adts", data: []byte{0xFF, 0xF1, 0x50, 0x80}},
		{name: "empty", data: []byte{}, err: ErrEmptySegment},
		{name: "html error page", data: []byte("<html><body>502</body></html>"), err: ErrUnknownPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePayload(tt.data)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestBackBuffer(t *testing.T) {
	buffer := newBackBuffer(10 * time.Second)

	for seq := uint64(0); seq < 6; seq++ {
		buffer.add(seq, 4*time.Second)
	}

	assert.Equal(t, 8*time.Second, buffer.Duration())
	assert.Equal(t, 2, buffer.Len())
	assert.Equal(t, uint64(4), buffer.segments[0].seq)

	// a single segment longer than the window is still kept
	buffer.add(6, 30*time.Second)
	assert.Equal(t, 1, buffer.Len())
	assert.Equal(t, 30*time.Second, buffer.Duration())
	assert.Equal(t, uint64(6), buffer.segments[0].seq)

	// a zero window keeps only the newest segment
	empty := newBackBuffer(0)
	empty.add(0, time.Second)
	empty.add(1, time.Second)
	assert.Equal(t, 1, empty.Len())
	assert.Equal(t, time.Second, empty.Duration())
}
