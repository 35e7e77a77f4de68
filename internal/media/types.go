package media

// DurationUnknown marks a clip whose metadata has not been probed yet.
// Probing is deferred until a clip is an actual selection candidate so a
// scan of thousands of files stays cheap.
const DurationUnknown = -1

// ExtractMode is the policy for filling a scene's video time.
type ExtractMode string

const (
	// SingleVideo picks one clip and trims it to the narration length.
	SingleVideo ExtractMode = "single_video"
	// MultiVideo concatenates several clips until the narration is covered.
	MultiVideo ExtractMode = "multi_video"
)

// VideoExtensions is the scanner's video file allow-list.
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".webm"}

// AudioExtensions is the scanner's audio file allow-list.
var AudioExtensions = []string{".mp3", ".wav", ".aac", ".ogg", ".flac", ".m4a"}

// ClipInfo describes one media file. Duration is in seconds;
// DurationUnknown means "not yet probed". Width/Height are -1 until probed.
type ClipInfo struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps,omitempty"`
}

// NewClip returns a ClipInfo with all metadata unknown.
func NewClip(path string) ClipInfo {
	return ClipInfo{Path: path, Duration: DurationUnknown, Width: -1, Height: -1}
}

// MaterialFolder is a caller-supplied source of scenes.
type MaterialFolder struct {
	Path        string      `yaml:"path"`
	DisplayName string      `yaml:"name"`
	ExtractMode ExtractMode `yaml:"extract_mode"`
}

// Scene is the unit of composition: one narration segment and the clip
// inventory it draws from. Scenes are processed strictly in OrderedIndex
// order; which clip is chosen within a scene is randomized.
type Scene struct {
	Key          string      `json:"key"`
	OrderedIndex int         `json:"ordered_index"`
	Path         string      `json:"path"`
	DisplayName  string      `json:"display_name"`
	ParentFolder string      `json:"parent_folder"`
	ExtractMode  ExtractMode `json:"extract_mode"`
	Videos       []ClipInfo  `json:"videos"`
	Audios       []ClipInfo  `json:"audios"`
}

// Selection is the outcome of choosing material for one scene: an ordered
// set of videos covering the narration and the narration itself (nil for a
// silent scene).
type Selection struct {
	Videos        []ClipInfo
	Audio         *ClipInfo
	TargetSeconds float64
	MultiVideo    bool
}
