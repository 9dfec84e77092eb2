package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// StreamType classifies an audio source. It is fixed at stream creation and
// drives quality-gate thresholds and transcription VAD settings.
type StreamType string

const (
	StreamTypeMicrophone StreamType = "microphone"
	StreamTypeSystem     StreamType = "system"
)

// Valid reports whether the stream type is one of the known values
func (t StreamType) Valid() bool {
	return t == StreamTypeMicrophone || t == StreamTypeSystem
}

// String returns the wire representation of the stream type
func (t StreamType) String() string {
	return string(t)
}

// ParseStreamType converts a wire string into a StreamType
func ParseStreamType(s string) (StreamType, error) {
	t := StreamType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown stream type %q", s)
	}
	return t, nil
}

// CommandType identifies a client request. The set is closed: anything else
// is a protocol error.
type CommandType string

const (
	CmdStartStream     CommandType = "start_stream"
	CmdStopStream      CommandType = "stop_stream"
	CmdStreamChunk     CommandType = "stream_chunk"
	CmdDualStreamChunk CommandType = "dual_stream_chunk" // legacy one-shot file path
	CmdCheckAlerts     CommandType = "check_alerts"
)

// IsValidCommandType checks if the command type is part of the closed set
func IsValidCommandType(t CommandType) bool {
	switch t {
	case CmdStartStream, CmdStopStream, CmdStreamChunk, CmdDualStreamChunk, CmdCheckAlerts:
		return true
	default:
		return false
	}
}

// Keyword is one alert keyword with its similarity threshold
type Keyword struct {
	Keyword   string  `json:"keyword"`
	Threshold float64 `json:"threshold"`
	Enabled   bool    `json:"enabled"`
}

// AlertMatch is one matched keyword in a check_alerts reply
type AlertMatch struct {
	Keyword     string  `json:"keyword"`
	MatchedText string  `json:"matched_text"`
	Similarity  float64 `json:"similarity"`
}

// Command represents one newline-delimited client request. Only the fields
// relevant to the command's type are populated.
type Command struct {
	Type       CommandType `json:"type"`
	StreamID   string      `json:"stream_id,omitempty"`
	StreamType StreamType  `json:"stream_type,omitempty"`
	AudioData  string      `json:"audio_data,omitempty"` // base64 float32 PCM
	AudioPath  string      `json:"audio_path,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
	Keywords   []Keyword   `json:"keywords,omitempty"`
}

// ParseCommand decodes and validates one request line
func ParseCommand(line []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return nil, fmt.Errorf("malformed command record: %w", err)
	}

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	return &cmd, nil
}

// Validate checks the command type and its required fields
func (c *Command) Validate() error {
	if !IsValidCommandType(c.Type) {
		return fmt.Errorf("unknown command type %q", string(c.Type))
	}

	switch c.Type {
	case CmdStartStream:
		if c.StreamID == "" {
			return fmt.Errorf("start_stream requires stream_id")
		}
		if !c.StreamType.Valid() {
			return fmt.Errorf("start_stream requires stream_type of %q or %q",
				StreamTypeMicrophone, StreamTypeSystem)
		}

	case CmdStopStream:
		if c.StreamID == "" {
			return fmt.Errorf("stop_stream requires stream_id")
		}

	case CmdStreamChunk:
		if c.StreamID == "" {
			return fmt.Errorf("stream_chunk requires stream_id")
		}
		if c.AudioData == "" {
			return fmt.Errorf("stream_chunk requires audio_data")
		}

	case CmdDualStreamChunk:
		if c.AudioPath == "" {
			return fmt.Errorf("dual_stream_chunk requires audio_path")
		}
		if !c.StreamType.Valid() {
			return fmt.Errorf("dual_stream_chunk requires stream_type of %q or %q",
				StreamTypeMicrophone, StreamTypeSystem)
		}

	case CmdCheckAlerts:
		if c.Transcript == "" {
			return fmt.Errorf("check_alerts requires transcript")
		}
	}

	return nil
}

// DecodeAudioData decodes the base64 audio payload of a stream_chunk command
func (c *Command) DecodeAudioData() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(c.AudioData)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio_data: %w", err)
	}
	return data, nil
}

// Segment is one timed piece of transcribed text in a reply
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptResult is the synchronous transcript payload returned by the
// legacy dual_stream_chunk path
type TranscriptResult struct {
	Text                string    `json:"text"`
	Language            string    `json:"language,omitempty"`
	LanguageProbability float64   `json:"language_probability,omitempty"`
	Duration            float64   `json:"duration"`
	Segments            []Segment `json:"segments,omitempty"`
}

// Response is the single reply record sent for every request
type Response struct {
	Success    bool              `json:"success"`
	StreamID   string            `json:"stream_id,omitempty"`
	Error      string            `json:"error,omitempty"`
	Transcript *TranscriptResult `json:"transcript,omitempty"`
	Matches    []AlertMatch      `json:"matches,omitempty"`
}

// OK builds a success response for the given stream
func OK(streamID string) *Response {
	return &Response{Success: true, StreamID: streamID}
}

// Fail builds an error response; the connection stays open
func Fail(err error) *Response {
	return &Response{Success: false, Error: err.Error()}
}

// TranscriptUpdate is an unsolicited record pushed to the connection owning
// a stream whenever the accumulator emits a completed sentence.
type TranscriptUpdate struct {
	Type       string     `json:"type"` // always "transcript_update"
	StreamID   string     `json:"stream_id"`
	StreamType StreamType `json:"stream_type"`
	Text       string     `json:"text"`
	StartTime  float64    `json:"start_time"`
	EndTime    float64    `json:"end_time"`
}

// UpdateRecordType is the type tag carried by pushed transcript updates
const UpdateRecordType = "transcript_update"

// String returns a compact human-readable form for logging
func (c *Command) String() string {
	switch c.Type {
	case CmdStreamChunk:
		return fmt.Sprintf("Command{%s stream=%s payload=%dB}", c.Type, c.StreamID, len(c.AudioData))
	case CmdDualStreamChunk:
		return fmt.Sprintf("Command{%s path=%s type=%s}", c.Type, c.AudioPath, c.StreamType)
	case CmdCheckAlerts:
		return fmt.Sprintf("Command{%s keywords=%d}", c.Type, len(c.Keywords))
	default:
		return fmt.Sprintf("Command{%s stream=%s}", c.Type, c.StreamID)
	}
}
