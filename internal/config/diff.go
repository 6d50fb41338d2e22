package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	FeedsChanged bool       // true if any feed topic was added, removed, or modified
	FeedChanges  []FeedDiff // per-topic diffs
}

// FeedDiff describes what changed for a single feed topic between two configs.
type FeedDiff struct {
	Name             string
	URLsChanged      bool
	ThresholdChanged bool
	Added            bool
	Removed          bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldFeeds := make(map[string]*FeedTopicConfig, len(old.Tools.Feeds))
	for i := range old.Tools.Feeds {
		oldFeeds[old.Tools.Feeds[i].Name] = &old.Tools.Feeds[i]
	}
	newFeeds := make(map[string]*FeedTopicConfig, len(new.Tools.Feeds))
	for i := range new.Tools.Feeds {
		newFeeds[new.Tools.Feeds[i].Name] = &new.Tools.Feeds[i]
	}

	// Detect modified and removed topics.
	for name, oldFeed := range oldFeeds {
		newFeed, exists := newFeeds[name]
		if !exists {
			d.FeedChanges = append(d.FeedChanges, FeedDiff{Name: name, Removed: true})
			d.FeedsChanged = true
			continue
		}
		fd := FeedDiff{
			Name:             name,
			URLsChanged:      !slices.Equal(oldFeed.URLs, newFeed.URLs),
			ThresholdChanged: oldFeed.Threshold != newFeed.Threshold,
		}
		if fd.URLsChanged || fd.ThresholdChanged {
			d.FeedChanges = append(d.FeedChanges, fd)
			d.FeedsChanged = true
		}
	}

	// Detect added topics.
	for name := range newFeeds {
		if _, exists := oldFeeds[name]; !exists {
			d.FeedChanges = append(d.FeedChanges, FeedDiff{Name: name, Added: true})
			d.FeedsChanged = true
		}
	}

	return d
}
