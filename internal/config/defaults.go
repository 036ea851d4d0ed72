package config

import (
	"github.com/google/uuid"

	"github.com/modeshift/modeshift/internal/domain"
)

// CurrentSchemaVersion is the version written into new documents.
const CurrentSchemaVersion = 1

// DefaultConfig returns the first-run configuration: three sample modes
// and a conservative set of behavior flags (safe close, no auto-reapply).
func DefaultConfig() domain.Config {
	return domain.Config{
		Version: CurrentSchemaVersion,
		GlobalAllowList: []domain.AppIdentity{
			{BundleID: "com.apple.finder", Name: "Finder"},
		},
		Modes: []domain.Mode{
			{
				ID:   uuid.NewString(),
				Name: "Focus",
				Icon: "target",
				Apps: []domain.AppIdentity{
					{BundleID: "com.microsoft.VSCode", Name: "Visual Studio Code"},
					{BundleID: "com.apple.Terminal", Name: "Terminal"},
				},
			},
			{
				ID:   uuid.NewString(),
				Name: "Meetings",
				Icon: "video",
				Apps: []domain.AppIdentity{
					{BundleID: "us.zoom.xos", Name: "Zoom"},
					{BundleID: "com.apple.iCal", Name: "Calendar"},
					{BundleID: "com.tinyspeck.slackmacgap", Name: "Slack"},
				},
			},
			{
				ID:   uuid.NewString(),
				Name: "Break",
				Icon: "cup",
				Apps: []domain.AppIdentity{
					{BundleID: "com.spotify.client", Name: "Spotify"},
					{BundleID: "com.apple.Safari", Name: "Safari"},
				},
			},
		},
		ForceCloseApps:         false,
		EnableAutoReapply:      false,
		AutoReapplyIntervalSec: 60,
		SwitcherKeyBinding:     domain.SwitcherBindingOption,
	}
}
