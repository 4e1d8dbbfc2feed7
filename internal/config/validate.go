package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateReclaim(); err != nil {
		return err
	}
	if err := c.validateIndex(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Root == "" {
		return errors.New("storage.root must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if len(c.Pipeline.Stages) == 0 {
		return errors.New("pipeline.stages must include at least one stage")
	}
	seen := make(map[string]struct{}, len(c.Pipeline.Stages))
	for _, s := range c.Pipeline.Stages {
		if s.Name == "" {
			return errors.New("pipeline.stages[].name must be set")
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("pipeline.stages contains duplicate stage name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Concurrency <= 0 {
			return fmt.Errorf("pipeline.stages[%q].concurrency must be positive", s.Name)
		}
		if s.LeaseSeconds <= 0 {
			return fmt.Errorf("pipeline.stages[%q].lease_seconds must be positive", s.Name)
		}
		if s.MaxRetries < 0 {
			return fmt.Errorf("pipeline.stages[%q].max_retries must be >= 0", s.Name)
		}
		if s.BackoffSeconds <= 0 {
			return fmt.Errorf("pipeline.stages[%q].backoff_seconds must be positive", s.Name)
		}
		if s.TimeoutSeconds <= 0 {
			return fmt.Errorf("pipeline.stages[%q].timeout_seconds must be positive", s.Name)
		}
	}
	return nil
}

func (c *Config) validateReclaim() error {
	if c.Reclaim.ScanIntervalSeconds <= 0 {
		return errors.New("reclaim.scan_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateIndex() error {
	if c.Index.Path == "" {
		return errors.New("index.path must be set")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
