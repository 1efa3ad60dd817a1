package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
		}
		if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://jetzy-nutrition-plan.netlify.app" {
			t.Errorf("Unexpected default origins: %v", cfg.CORS.AllowedOrigins)
		}
		if cfg.Inference.TopK != 5 {
			t.Errorf("Expected top_k 5, got %d", cfg.Inference.TopK)
		}
		if cfg.Training.Seed != 42 || cfg.Training.Trees != 100 {
			t.Errorf("Unexpected training defaults: %+v", cfg.Training)
		}
		if cfg.Server.WriteTimeout <= cfg.Training.Timeout {
			t.Errorf("Expected write timeout %s to exceed training timeout %s", cfg.Server.WriteTimeout, cfg.Training.Timeout)
		}
		if cfg.Telegram.Enabled() {
			t.Error("Expected telegram to be disabled by default")
		}
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("FRONTEND_ORIGIN", "https://a.example, https://b.example")
		t.Setenv("TRAINING_TIMEOUT", "45s")
		t.Setenv("RETRAIN_ON_SELECTION", "false")
		t.Setenv("TELEGRAM_BOT_TOKEN", "token")
		t.Setenv("TELEGRAM_WEBHOOK_URL", "https://bot.example/telegram/webhook")
		t.Setenv("TELEGRAM_ALLOWED_USER_IDS", "11,22")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
		}
		if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
			t.Errorf("Expected two trimmed origins, got %v", cfg.CORS.AllowedOrigins)
		}
		if cfg.Training.Timeout != 45*time.Second {
			t.Errorf("Expected 45s training timeout, got %s", cfg.Training.Timeout)
		}
		if cfg.Training.OnSelection {
			t.Error("Expected retrain on selection to be disabled")
		}
		if len(cfg.Telegram.AllowedUserIDs) != 2 || cfg.Telegram.AllowedUserIDs[0] != 11 {
			t.Errorf("Expected allowed users [11 22], got %v", cfg.Telegram.AllowedUserIDs)
		}
	})

	t.Run("YAMLFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "inference:\n  top_k: 3\npaths:\n  model_dir: /tmp/models\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}
		t.Setenv(ConfigPathEnvVar, path)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.Inference.TopK != 3 {
			t.Errorf("Expected top_k 3 from file, got %d", cfg.Inference.TopK)
		}
		if cfg.Paths.ModelDir != "/tmp/models" {
			t.Errorf("Expected model dir from file, got '%s'", cfg.Paths.ModelDir)
		}
		if cfg.Paths.SubmissionLog != "data/submissions.jsonl" {
			t.Errorf("Expected default submission log to survive, got '%s'", cfg.Paths.SubmissionLog)
		}
	})

	t.Run("InvalidTopK", func(t *testing.T) {
		t.Setenv("INFERENCE_TOP_K", "50")

		_, err := Load()
		if err == nil {
			t.Fatal("Expected an error for top_k 50, got nil")
		}
		if !strings.Contains(err.Error(), "inference.top_k") {
			t.Errorf("Expected error to mention inference.top_k, got '%s'", err.Error())
		}
	})

	t.Run("WriteTimeoutBelowTraining", func(t *testing.T) {
		t.Setenv("SERVER_WRITE_TIMEOUT", "30s")

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "server.write_timeout") {
			t.Errorf("Expected write timeout error, got %v", err)
		}

		t.Setenv("RETRAIN_ON_SELECTION", "false")
		if _, err := Load(); err != nil {
			t.Errorf("Expected no error without retrain on selection, got %v", err)
		}
	})

	t.Run("TelegramWithoutWebhook", func(t *testing.T) {
		t.Setenv("TELEGRAM_BOT_TOKEN", "token")

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "telegram.webhook_url") {
			t.Errorf("Expected webhook error, got %v", err)
		}
	})
}

func TestValidateUnknownPolicy(t *testing.T) {
	cfg := defaultConfig()
	cfg.Training.UnknownPolicy = "drop"

	if err := cfg.Validate(); err == nil {
		t.Error("Expected an error for unknown policy 'drop'")
	}
}
