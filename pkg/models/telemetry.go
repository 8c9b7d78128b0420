// Package models pkg/models/telemetry.go holds the shared telemetry types.
package models

import (
	"encoding/json"
	"fmt"
)

// Channel identifies one of the three telemetry stream kinds.
type Channel int

const (
	ChannelRealtime Channel = iota
	ChannelHistoricalEnvironment
	ChannelHistoricalSoil
)

const (
	channelNameRealtime       = "realtime"
	channelNameHistoricalEnv  = "historical_env"
	channelNameHistoricalSoil = "historical_soil"
)

func (c Channel) String() string {
	switch c {
	case ChannelRealtime:
		return channelNameRealtime
	case ChannelHistoricalEnvironment:
		return channelNameHistoricalEnv
	case ChannelHistoricalSoil:
		return channelNameHistoricalSoil
	default:
		return "unknown"
	}
}

// ParseChannel maps a serialised channel name back to its Channel.
func ParseChannel(name string) (Channel, bool) {
	switch name {
	case channelNameRealtime:
		return ChannelRealtime, true
	case channelNameHistoricalEnv:
		return ChannelHistoricalEnvironment, true
	case channelNameHistoricalSoil:
		return ChannelHistoricalSoil, true
	default:
		return 0, false
	}
}

// MarshalJSON serialises the channel by name.
func (c Channel) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses a channel from its serialised name.
func (c *Channel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	parsed, ok := ParseChannel(name)
	if !ok {
		return fmt.Errorf("unknown telemetry channel %q", name)
	}

	*c = parsed

	return nil
}

// Reading labels used by the producing paths.
const (
	LabelRealtime       = "Realtime"
	LabelHistoricalEnv  = "Historical_ENV"
	LabelHistoricalSoil = "Historical_Soil"
)

// TimestampLayout is the local-time layout carried in readings.
const TimestampLayout = "2006-01-02 15:04:05"

// Reading is one timestamped sample. Fields not populated by the
// producing path stay zero.
type Reading struct {
	Label       string  `json:"label"`
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Light       float64 `json:"light"`
	Soil        float64 `json:"soil"`
	Gas         float64 `json:"gas"`
	Raindrop    float64 `json:"raindrop"`
}

// Frame is the publish unit sent on the wire. Snapshot marks a replay of
// cached state; incremental realtime pushes carry snapshot=false.
type Frame struct {
	Channel       Channel   `json:"channel"`
	Snapshot      bool      `json:"snapshot"`
	CorrelationID string    `json:"correlationId"`
	Readings      []Reading `json:"readings"`
}
