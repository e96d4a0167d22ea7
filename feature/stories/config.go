package stories

// Segment policies for audio uploads.
const (
	// SegmentsAppend adds the uploaded object unless an identical entry exists.
	SegmentsAppend = "append"
	// SegmentsReplace makes the uploaded object the only segment.
	SegmentsReplace = "replace"
)

// Config holds the pipeline settings.
type Config struct {
	// RootToken is the first path segment of ingestible object keys.
	RootToken string `mapstructure:"root_token" default:"stories"`
	// Collection holds the story records.
	Collection string `mapstructure:"collection" default:"stories"`
	// AudioSegments is append or replace.
	AudioSegments string `mapstructure:"audio_segments" default:"append"`
	// ShareIDCounter is the counter document used for share ids.
	ShareIDCounter string `mapstructure:"share_id_counter" default:"stories_shareId"`
	// MaxDeliveries bounds how often an in-process listener runs a failing event.
	MaxDeliveries int `mapstructure:"max_deliveries" default:"3"`
}

// IsValidSegmentPolicy checks the audio segment policy. Empty falls back to append.
func (c Config) IsValidSegmentPolicy() bool {
	switch c.AudioSegments {
	case SegmentsAppend, SegmentsReplace, "":
		return true
	default:
		return false
	}
}

func (c Config) withDefaults() Config {
	if c.RootToken == "" {
		c.RootToken = "stories"
	}
	if c.Collection == "" {
		c.Collection = "stories"
	}
	if c.AudioSegments == "" {
		c.AudioSegments = SegmentsAppend
	}
	if c.ShareIDCounter == "" {
		c.ShareIDCounter = "stories_shareId"
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 3
	}
	return c
}
