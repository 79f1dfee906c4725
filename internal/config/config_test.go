package config_test

import (
	"testing"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() config.Config {
	return config.Config{
		ServerPort:  "8080",
		DatabaseURL: "postgres://localhost/lawsa",
		RedisURL:    "redis://localhost:6379/0",
		JWTSecret:   "secret",
		Assessment: config.AssessmentConfig{
			GradedDuration:        30 * time.Minute,
			PracticeDuration:      10 * time.Minute,
			GradedQuestionLimit:   20,
			PracticeQuestionLimit: 10,
			AutosaveDebounce:      500 * time.Millisecond,
			CheckpointInterval:    30 * time.Second,
			AutoAdvanceDelay:      1500 * time.Millisecond,
		},
		RateLimitPerSec: 10,
		RateLimitBurst:  20,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty port", func(c *config.Config) { c.ServerPort = "" }, "SERVER_PORT"},
		{"empty database", func(c *config.Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"empty secret", func(c *config.Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"zero graded duration", func(c *config.Config) { c.Assessment.GradedDuration = 0 }, "GRADED_DURATION_SEC"},
		{"practice longer than graded", func(c *config.Config) { c.Assessment.PracticeDuration = time.Hour }, "cannot exceed"},
		{"zero question limit", func(c *config.Config) { c.Assessment.PracticeQuestionLimit = 0 }, "question limits"},
		{"negative auto advance", func(c *config.Config) { c.Assessment.AutoAdvanceDelay = -time.Second }, "AUTO_ADVANCE_MS"},
		{"zero rate", func(c *config.Config) { c.RateLimitPerSec = 0 }, "rate limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ReadsAssessmentOverrides(t *testing.T) {
	t.Setenv("GRADED_DURATION_SEC", "900")
	t.Setenv("AUTO_ADVANCE_MS", "0")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("GRADED_QUESTION_LIMIT", "not-a-number")

	cfg := config.Load()

	assert.Equal(t, 15*time.Minute, cfg.Assessment.GradedDuration)
	assert.Equal(t, time.Duration(0), cfg.Assessment.AutoAdvanceDelay)
	assert.Equal(t, 20, cfg.Assessment.GradedQuestionLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
