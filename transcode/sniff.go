package transcode

import (
	"github.com/h2non/filetype"
)

// ContainerInfo describes what the magic-number sniffer recognised
type ContainerInfo struct {
	Extension string // "mp3", "wav", "" when unknown
	MIME      string // "audio/mpeg", "application/octet-stream" when unknown
	Media     bool   // audio or video container
	Known     bool   // sniffer recognised the bytes at all
}

// SniffContainer inspects the leading bytes of data. Unknown formats are not
// rejected here; ffprobe gets the final say on those.
func SniffContainer(data []byte) ContainerInfo {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ContainerInfo{MIME: "application/octet-stream"}
	}

	return ContainerInfo{
		Extension: kind.Extension,
		MIME:      kind.MIME.Value,
		Media:     filetype.IsAudio(data) || filetype.IsVideo(data),
		Known:     true,
	}
}

// IsWAV reports whether the container is RIFF/WAVE
func (c ContainerInfo) IsWAV() bool {
	return c.Extension == "wav"
}
