package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	// KeywordsChanged means the wake-word keyword set differs and the
	// detector needs re-initialization.
	KeywordsChanged bool

	// LanguageChanged means the transcription language differs.
	LanguageChanged bool
	NewLanguage     string

	// CaptureChanged means sensitivity or silence window differ.
	CaptureChanged bool

	// TriggerChanged means the hotkey binding or mode differ. Applying
	// this requires re-registering the hotkey.
	TriggerChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.KeywordsChanged || d.LanguageChanged || d.CaptureChanged ||
		d.TriggerChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Transcription.Language != new.Transcription.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Transcription.Language
	}

	if old.Capture != new.Capture {
		d.CaptureChanged = true
	}

	if old.Trigger != new.Trigger {
		d.TriggerChanged = true
	}

	d.KeywordsChanged = keywordsDiffer(old.WakeWord, new.WakeWord)

	return d
}

// keywordsDiffer compares the wake-word keyword sets in order.
func keywordsDiffer(old, new WakeWordConfig) bool {
	if old.Enabled != new.Enabled || old.ModelDir != new.ModelDir {
		return true
	}
	if len(old.Keywords) != len(new.Keywords) {
		return true
	}
	for i := range old.Keywords {
		if old.Keywords[i] != new.Keywords[i] {
			return true
		}
	}
	return false
}
