package config

const (
	systemConfigPath           = "/etc/ebookconverter.toml"
	defaultFilesDir            = "~/gutenberg/public"
	defaultCacheLoc            = "cache/epub"
	defaultLogDir              = "~/.local/share/ebookconverter/logs"
	defaultPIDFile             = "/tmp/ebookconverter.pid"
	defaultCatalogDriver       = "sqlite"
	defaultEngineBinary        = "ebookmaker"
	defaultExtensionPackage    = "ebookconverter.writers"
	defaultEntriesPerBatch     = 1
	defaultLegacyIDThreshold   = 10000
	defaultMaxTraversalDepth   = 3
	defaultMaxSourceMiB        = 32
	defaultStaleAfterHours     = 24
	defaultSiteURL             = "https://www.gutenberg.org/"
	defaultBibRecURL           = "https://www.gutenberg.org/ebooks"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	catalogDriverSQLite        = "sqlite"
	catalogDriverPostgres      = "postgres"
	defaultSQLiteCatalogName   = "catalog.db"
	defaultMaxSourceTextMiB    = 8
	defaultMaxSourceEpubMiB    = 16
	defaultMaxSourceEpub3MiB   = 16
	defaultEngineTimeoutSecond = 0
	defaultLogRetentionDays    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			FilesDir: defaultFilesDir,
			CacheLoc: defaultCacheLoc,
			LogDir:   defaultLogDir,
			PIDFile:  defaultPIDFile,
		},
		Catalog: Catalog{
			Driver: defaultCatalogDriver,
		},
		Engine: Engine{
			Binary:           defaultEngineBinary,
			ExtensionPackage: defaultExtensionPackage,
			TimeoutSeconds:   defaultEngineTimeoutSecond,
		},
		Conversion: Conversion{
			EntriesPerBatch:     defaultEntriesPerBatch,
			LegacyIDThreshold:   defaultLegacyIDThreshold,
			MaxTraversalDepth:   defaultMaxTraversalDepth,
			DefaultMaxSourceMiB: defaultMaxSourceMiB,
			MaxSourceMiB: map[string]int{
				"txt":   defaultMaxSourceTextMiB,
				"epub":  defaultMaxSourceEpubMiB,
				"epub3": defaultMaxSourceEpub3MiB,
			},
			StaleAfterHours: defaultStaleAfterHours,
		},
		URLs: URLs{
			Site:   defaultSiteURL,
			BibRec: defaultBibRecURL,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
