package pipeline

// DefaultFormat is assumed when the payload signature is unrecognized.
// Browser capture overwhelmingly produces webm.
const DefaultFormat = "webm"

// DetectFormat infers the audio container from the payload's leading
// bytes. Used when the client omits the format tag.
func DetectFormat(payload []byte) string {
	if len(payload) < 4 {
		return DefaultFormat
	}

	// WebM / Matroska EBML header
	if payload[0] == 0x1A && payload[1] == 0x45 && payload[2] == 0xDF && payload[3] == 0xA3 {
		return "webm"
	}

	// OGG ("OggS")
	if payload[0] == 0x4F && payload[1] == 0x67 && payload[2] == 0x67 && payload[3] == 0x53 {
		return "ogg"
	}

	// WAV ("RIFF")
	if payload[0] == 0x52 && payload[1] == 0x49 && payload[2] == 0x46 && payload[3] == 0x46 {
		return "wav"
	}

	// MP3 ("ID3" tag or a frame sync)
	if (payload[0] == 0x49 && payload[1] == 0x44 && payload[2] == 0x33) ||
		(payload[0] == 0xFF && payload[1]&0xE0 == 0xE0) {
		return "mp3"
	}

	return DefaultFormat
}
