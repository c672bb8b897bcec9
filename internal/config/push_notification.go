package config

type PushConfig struct {
	Provider string     `yaml:"provider"`
	FCM      *FCMConfig `yaml:"fcm"`
}

type FCMConfig struct {
	ProjectID   string `yaml:"project_id"`
	Credentials string `yaml:"credentials_file"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Enabled reports whether prompts are mirrored to supervisor devices.
func (p *PushConfig) Enabled() bool {
	return p.Provider == "fcm" && p.FCM.Credentials != ""
}

func loadPushConfig() *PushConfig {
	return &PushConfig{
		Provider: getEnv("PUSH_PROVIDER", "none"),
		FCM: &FCMConfig{
			ProjectID:   getEnv("FCM_PROJECT_ID", ""),
			Credentials: getEnv("FCM_CREDENTIALS_FILE", ""),
			TopicPrefix: getEnv("FCM_TOPIC_PREFIX", "district-"),
		},
	}
}
