package config

import "testing"

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Tools: ToolsConfig{
			Feeds: []FeedTopicConfig{
				{Name: "technology", URLs: []string{"https://a"}, Threshold: 0.7},
				{Name: "sport", URLs: []string{"https://b"}, Threshold: 0.5},
			},
		},
	}
}

func TestDiffNoChanges(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	d := Diff(old, new)
	if d.LogLevelChanged || d.FeedsChanged {
		t.Errorf("diff of identical configs = %+v", d)
	}
}

func TestDiffLogLevel(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = LogDebug

	d := Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("diff = %+v", d)
	}
}

func TestDiffFeedModified(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Tools.Feeds[0].Threshold = 0.8

	d := Diff(old, new)
	if !d.FeedsChanged || len(d.FeedChanges) != 1 {
		t.Fatalf("diff = %+v", d)
	}
	fd := d.FeedChanges[0]
	if fd.Name != "technology" || !fd.ThresholdChanged || fd.URLsChanged {
		t.Errorf("feed diff = %+v", fd)
	}
}

func TestDiffFeedAddedAndRemoved(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Tools.Feeds = []FeedTopicConfig{
		old.Tools.Feeds[0],
		{Name: "science", URLs: []string{"https://c"}, Threshold: 0.6},
	}

	d := Diff(old, new)
	if !d.FeedsChanged {
		t.Fatal("feed changes not detected")
	}
	var added, removed bool
	for _, fd := range d.FeedChanges {
		if fd.Name == "science" && fd.Added {
			added = true
		}
		if fd.Name == "sport" && fd.Removed {
			removed = true
		}
	}
	if !added || !removed {
		t.Errorf("diff = %+v", d.FeedChanges)
	}
}
