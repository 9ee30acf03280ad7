package transcode

import (
	"bytes"
	"fmt"
	"path"
	"sort"

	"github.com/grafov/m3u8"
)

// Width assumes a 16:9 picture, with the common 854 for 480 lines.
func (r Rendition) Width() int {
	if r.Height == 480 {
		return 854
	}
	return r.Height * 16 / 9
}

// Bandwidth is the advertised peak rate in bits per second.
func (r Rendition) Bandwidth() uint32 {
	return uint32(r.VideoBitrate) * 1000
}

func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width(), r.Height)
}

// FilterLadder drops renditions taller than the source, nothing is upscaled.
func FilterLadder(ladder []Rendition, sourceHeight int) []Rendition {
	renditions := []Rendition{}
	for _, rendition := range ladder {
		if rendition.Height <= sourceHeight {
			renditions = append(renditions, rendition)
		}
	}
	return renditions
}

// MasterPlaylist lists every rendition playlist, highest bandwidth first.
func MasterPlaylist(renditions []Rendition, playlistName string) *bytes.Buffer {
	sorted := append([]Rendition{}, renditions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Bandwidth() > sorted[j].Bandwidth()
	})

	master := m3u8.NewMasterPlaylist()
	for _, rendition := range sorted {
		master.Append(path.Join(rendition.Name, playlistName), nil, m3u8.VariantParams{
			Bandwidth:  rendition.Bandwidth(),
			Resolution: rendition.Resolution(),
			Name:       rendition.Name,
		})
	}

	return master.Encode()
}
