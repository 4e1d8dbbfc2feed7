package config

const (
	defaultStorageRoot           = "~/.local/share/jobforge/storage"
	defaultUploadsDirName        = "uploads"
	defaultPackagedArtifactsName = "artifactsPackaged"
	defaultIndexPath             = "~/.local/share/jobforge/index.sqlite"
	defaultDaemonLockPath        = "~/.local/share/jobforge/orchestrand.lock"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultReclaimScanInterval   = 30
	defaultStageConcurrency      = 2
	defaultStageLeaseSeconds     = 300
	defaultStageMaxRetries       = 3
	defaultStageBackoffSeconds   = 10
	defaultStageTimeoutSeconds   = 1800
	defaultNotifyRequestTimeout  = 10
)

// Default returns a Config populated with repository defaults: the
// four-stage ingest -> separation -> lyrics -> package pipeline.
func Default() Config {
	return Config{
		Storage: Storage{
			Root:                  defaultStorageRoot,
			UploadsDirName:        defaultUploadsDirName,
			PackagedArtifactsName: defaultPackagedArtifactsName,
		},
		Pipeline: Pipeline{
			Stages: []StageConfig{
				defaultStage("download"),
				defaultStage("separation"),
				defaultStage("lyrics"),
				defaultStage("package"),
			},
		},
		Reclaim: Reclaim{
			ScanIntervalSeconds: defaultReclaimScanInterval,
		},
		Index: Index{
			Path: defaultIndexPath,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCreated:     true,
			StageCompleted: true,
			StageFailed:    true,
			JobReclaimed:   true,
		},
		Daemon: Daemon{
			LockPath: defaultDaemonLockPath,
		},
	}
}

func defaultStage(name string) StageConfig {
	return StageConfig{
		Name:           name,
		Concurrency:    defaultStageConcurrency,
		LeaseSeconds:   defaultStageLeaseSeconds,
		MaxRetries:     defaultStageMaxRetries,
		BackoffSeconds: defaultStageBackoffSeconds,
		TimeoutSeconds: defaultStageTimeoutSeconds,
	}
}
