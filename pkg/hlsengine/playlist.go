package hlsengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/grafov/m3u8"
)

type segmentRef struct {
	seq      uint64
	uri      *url.URL
	duration time.Duration
}

func decodePlaylist(data []byte) (m3u8.Playlist, m3u8.ListType, error) {
	return m3u8.DecodeFrom(bytes.NewReader(data), false)
}

// selectVariant picks the best variant within maxBandwidth, falling back
// to the lowest one when nothing fits.
func selectVariant(variants []*m3u8.Variant, maxBandwidth int) *m3u8.Variant {
	var best, lowest *m3u8.Variant

	for _, variant := range variants {
		if variant == nil || variant.URI == "" || variant.Iframe {
			continue
		}

		if lowest == nil || variant.Bandwidth < lowest.Bandwidth {
			lowest = variant
		}

		if maxBandwidth > 0 && int(variant.Bandwidth) > maxBandwidth {
			continue
		}

		if best == nil || variant.Bandwidth > best.Bandwidth {
			best = variant
		}
	}

	if best == nil {
		return lowest
	}
	return best
}

// segmentsOf returns the populated part of the playlist's segment ring.
func segmentsOf(playlist *m3u8.MediaPlaylist) []*m3u8.MediaSegment {
	segments := []*m3u8.MediaSegment{}
	for _, segment := range playlist.Segments {
		if segment == nil {
			break
		}
		segments = append(segments, segment)
	}
	return segments
}

func pendingSegments(base *url.URL, playlist *m3u8.MediaPlaylist, next uint64) []segmentRef {
	refs := []segmentRef{}

	for i, segment := range segmentsOf(playlist) {
		seq := playlist.SeqNo + uint64(i)
		if seq < next {
			continue
		}

		ref, err := url.Parse(segment.URI)
		if err != nil {
			continue
		}

		refs = append(refs, segmentRef{
			seq:      seq,
			uri:      base.ResolveReference(ref),
			duration: time.Duration(segment.Duration * float64(time.Second)),
		})
	}

	return refs
}

func get(ctx context.Context, client *http.Client, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}
