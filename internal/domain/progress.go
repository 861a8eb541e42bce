package domain

// ProgressChannel names a progress notification stream.
type ProgressChannel string

const (
	ChannelUploadProgress        ProgressChannel = "CONTACTS_UPLOAD_PROGRESS"
	ChannelMarkDuplicateProgress ProgressChannel = "CONTACTS_MARK_DUPLICATE_PROGRESS"
)

// ProgressMessage carries either a percentage or an error for a background job.
type ProgressMessage struct {
	Channel  ProgressChannel `json:"channel"`
	Progress *float64        `json:"progress,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Progress builds a percentage message.
func Progress(ch ProgressChannel, pct float64) ProgressMessage {
	return ProgressMessage{Channel: ch, Progress: &pct}
}

// ProgressError builds an error message.
func ProgressError(ch ProgressChannel, err error) ProgressMessage {
	return ProgressMessage{Channel: ch, Error: err.Error()}
}
