package ffmpeg

// MediaInfo contains probed metadata about a media file
type MediaInfo struct {
	FilePath     string
	Duration     float64 // seconds
	Width        int
	Height       int
	FPS          float64
	Bitrate      int64
	VideoCodec   string
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
}

// Progress represents ffmpeg progress data parsed from stderr
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// ProgressFunc is a callback invoked periodically with progress data while
// an ffmpeg operation executes.
type ProgressFunc func(*Progress)

// RunOptions configures one ffmpeg invocation
type RunOptions struct {
	Args            []string
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultPreset     = "fast"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultAudioRate  = "192k"
	DefaultPixFmt     = "yuv420p"
	DefaultProfile    = "high"
	DefaultLevel      = "4.1"
)
