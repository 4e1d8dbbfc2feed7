package config

import (
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	if err := c.normalizeIndex(); err != nil {
		return err
	}
	if err := c.normalizeDaemon(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeReclaim()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizeStorage() error {
	var err error
	if strings.TrimSpace(c.Storage.Root) == "" {
		c.Storage.Root = defaultStorageRoot
	}
	if c.Storage.Root, err = expandPath(c.Storage.Root); err != nil {
		return err
	}
	if strings.TrimSpace(c.Storage.UploadsDirName) == "" {
		c.Storage.UploadsDirName = defaultUploadsDirName
	}
	if strings.TrimSpace(c.Storage.PackagedArtifactsName) == "" {
		c.Storage.PackagedArtifactsName = defaultPackagedArtifactsName
	}
	return nil
}

func (c *Config) normalizeIndex() error {
	var err error
	if strings.TrimSpace(c.Index.Path) == "" {
		c.Index.Path = defaultIndexPath
	}
	if c.Index.Path, err = expandPath(c.Index.Path); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeDaemon() error {
	var err error
	if strings.TrimSpace(c.Daemon.LockPath) == "" {
		c.Daemon.LockPath = defaultDaemonLockPath
	}
	if c.Daemon.LockPath, err = expandPath(c.Daemon.LockPath); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if len(c.Pipeline.Stages) == 0 {
		c.Pipeline.Stages = Default().Pipeline.Stages
	}
	for i := range c.Pipeline.Stages {
		s := &c.Pipeline.Stages[i]
		s.Name = strings.TrimSpace(s.Name)
		if s.Concurrency <= 0 {
			s.Concurrency = defaultStageConcurrency
		}
		if s.LeaseSeconds <= 0 {
			s.LeaseSeconds = defaultStageLeaseSeconds
		}
		if s.MaxRetries < 0 {
			s.MaxRetries = defaultStageMaxRetries
		}
		if s.BackoffSeconds <= 0 {
			s.BackoffSeconds = defaultStageBackoffSeconds
		}
		if s.TimeoutSeconds <= 0 {
			s.TimeoutSeconds = defaultStageTimeoutSeconds
		}
	}
}

func (c *Config) normalizeReclaim() {
	if c.Reclaim.ScanIntervalSeconds <= 0 {
		c.Reclaim.ScanIntervalSeconds = defaultReclaimScanInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("JOBFORGE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}
