package config

const (
	defaultConfigPath     = "~/.config/vidscribe/config.toml"
	defaultStateDir       = "~/.local/share/vidscribe"
	defaultScratchDir     = "~/.cache/vidscribe/scratch"
	defaultLogDir         = "~/.local/share/vidscribe/logs"
	defaultAPIBind        = "127.0.0.1:7497"
	defaultAPITokenEnv    = "VIDSCRIBE_API_TOKEN"
	defaultNtfyTimeout    = 10
	defaultWorkspaceHours = 24
	defaultRetentionDays  = 30

	defaultExtractorCommand    = "ffmpeg"
	defaultExtractorTimeout    = 1800
	defaultExtractorOutput     = "audio.wav"
	defaultTranscriberCommand  = "whisper-mps"
	defaultTranscriberTimeout  = 7200
	defaultTranscriberModel    = "large-v3"
	defaultTranscriberFileFlag = "--file-name"

	transcriptFileName = "output.json"
)

// Worker argument placeholders.
const (
	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
)

func defaultExtractorArgs() []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", PlaceholderInput,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		PlaceholderOutput,
	}
}

func defaultTranscriberArgs() []string {
	return []string{
		defaultTranscriberFileFlag, PlaceholderInput,
		"--model-name", defaultTranscriberModel,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			ScratchDir: defaultScratchDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Extractor: Worker{
			Command:        defaultExtractorCommand,
			Args:           defaultExtractorArgs(),
			TimeoutSeconds: defaultExtractorTimeout,
			OutputName:     defaultExtractorOutput,
		},
		Transcriber: Worker{
			Command:        defaultTranscriberCommand,
			Args:           defaultTranscriberArgs(),
			TimeoutSeconds: defaultTranscriberTimeout,
		},
		Jobs: Jobs{
			WorkspaceMaxAgeHours: defaultWorkspaceHours,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNtfyTimeout,
			NotifyCompleted: true,
			NotifyFailed:    true,
			NotifyCancelled: false,
		},
		Logging: Logging{
			Format:        "console",
			Level:         "info",
			RetentionDays: defaultRetentionDays,
		},
	}
}
