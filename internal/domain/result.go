package domain

// DeliveryResult is the outcome of one provider send. StatusCode is zero when
// no HTTP response was received.
type DeliveryResult struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// ChannelResult tags a DeliveryResult with the channel it was produced for.
type ChannelResult struct {
	ChannelID   string      `json:"channelId"`
	ChannelName string      `json:"channelName"`
	ChannelType ChannelType `json:"channelType"`
	DeliveryResult
}
