package main

import (
	"strings"
	"testing"
)

func TestChannelDepth(t *testing.T) {
	statsJSON := `{
		"topics": [
			{
				"topic_name": "other-topic",
				"channels": [
					{"channel_name": "dispatchers", "depth": 99}
				]
			},
			{
				"topic_name": "hook-triggers",
				"channels": [
					{"channel_name": "audit", "depth": 3},
					{"channel_name": "dispatchers", "depth": 17}
				]
			}
		]
	}`

	tests := []struct {
		name        string
		body        string
		topic       string
		channel     string
		wantDepth   float64
		wantFound   bool
		expectError bool
	}{
		{
			name:      "matching topic and channel",
			body:      statsJSON,
			topic:     "hook-triggers",
			channel:   "dispatchers",
			wantDepth: 17,
			wantFound: true,
		},
		{
			name:      "sibling channel on same topic",
			body:      statsJSON,
			topic:     "hook-triggers",
			channel:   "audit",
			wantDepth: 3,
			wantFound: true,
		},
		{
			name:      "unknown topic",
			body:      statsJSON,
			topic:     "missing-topic",
			channel:   "dispatchers",
			wantFound: false,
		},
		{
			name:      "unknown channel",
			body:      statsJSON,
			topic:     "hook-triggers",
			channel:   "missing-channel",
			wantFound: false,
		},
		{
			name:      "empty stats",
			body:      `{"topics": []}`,
			topic:     "hook-triggers",
			channel:   "dispatchers",
			wantFound: false,
		},
		{
			name:        "malformed stats",
			body:        `{not json`,
			topic:       "hook-triggers",
			channel:     "dispatchers",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			depth, found, err := channelDepth(strings.NewReader(tt.body), tt.topic, tt.channel)

			if (err != nil) != tt.expectError {
				t.Fatalf("channelDepth() error = %v, expectError %v", err, tt.expectError)
			}
			if tt.expectError {
				return
			}
			if found != tt.wantFound {
				t.Errorf("channelDepth() found = %v, want %v", found, tt.wantFound)
			}
			if found && depth != tt.wantDepth {
				t.Errorf("channelDepth() depth = %v, want %v", depth, tt.wantDepth)
			}
		})
	}
}
