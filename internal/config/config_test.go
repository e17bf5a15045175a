package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/comite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %s, want 8000", cfg.Port)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 2 {
		t.Errorf("pool sizes = %d/%d, want 10/2", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.BackupRetention != 30 {
		t.Errorf("BackupRetention = %d, want 30", cfg.BackupRetention)
	}
	if cfg.MailEnabled {
		t.Error("mail should default to disabled")
	}
	if !cfg.IsDev() {
		t.Error("default env should be development")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/comite")
	t.Setenv("PORT", "9000")
	t.Setenv("BACKUP_RETENTION", "7")
	t.Setenv("EXTRA_RECIPIENTS", "a@b.org,c@d.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %s, want 9000", cfg.Port)
	}
	if cfg.BackupRetention != 7 {
		t.Errorf("BackupRetention = %d, want 7", cfg.BackupRetention)
	}
	if len(cfg.ExtraRecipients) != 2 {
		t.Errorf("ExtraRecipients = %v, want 2", cfg.ExtraRecipients)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		BackupDir:       "./backups",
		BackupRetention: 30,
		MailFrom:        "comite@localhost",
		MailHost:        "localhost",
	}

	if err := base.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	c := base
	c.BackupRetention = 0
	if err := c.Validate(); err == nil {
		t.Error("retention 0 must be rejected")
	}

	c = base
	c.BackupDir = ""
	if err := c.Validate(); err == nil {
		t.Error("empty backup dir must be rejected")
	}

	c = base
	c.MailEnabled = true
	c.MailFrom = ""
	if err := c.Validate(); err == nil {
		t.Error("mail enabled without MAIL_FROM must be rejected")
	}
}
