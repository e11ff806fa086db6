package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/groupfiles/internal/flagx"
	"github.com/dmitrijs2005/groupfiles/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. It is seeded from the current Config, so keys absent
// from the file keep their previous values.
type JsonConfig struct {
	DatabaseDSN string `json:"database_dsn"`

	S3RootUser      string `json:"s3_root_user"`
	S3RootPassword  string `json:"s3_root_password"`
	S3Bucket        string `json:"s3_bucket"`
	S3Region        string `json:"s3_region"`
	S3BaseEndpoint  string `json:"s3_base_endpoint"`
	S3PublicBaseURL string `json:"s3_public_base_url"`
	S3Folder        string `json:"s3_folder"`

	FFprobePath  string `json:"ffprobe_path"`
	FFmpegPath   string `json:"ffmpeg_path"`
	PdftoppmPath string `json:"pdftoppm_path"`
	SofficePath  string `json:"soffice_path"`

	TempRoot string `json:"temp_root"`

	PreviewWidth  int `json:"preview_width"`
	PreviewHeight int `json:"preview_height"`
	ThumbnailSize int `json:"thumbnail_size"`
	JPEGQuality   int `json:"jpeg_quality"`

	RenderDPI      int            `json:"render_dpi"`
	RenderAttempts int            `json:"render_attempts"`
	RenderBackoff  timex.Duration `json:"render_backoff"`

	TypePolicyFile      string `json:"type_policy_file"`
	StreamingPresetFile string `json:"streaming_preset_file"`
	StreamingPreset     string `json:"streaming_preset"`

	TranscodeWorkers int `json:"transcode_workers"`
	TranscodeQueue   int `json:"transcode_queue"`

	DownloadURLTTL timex.Duration `json:"download_url_ttl"`
	MetricsAddr    string         `json:"metrics_addr"`
	LogLevel       string         `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags, or from
// $GROUPFILES_CONFIG. If neither is set, no JSON file is loaded.
//
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func toJson(config *Config) *JsonConfig {
	return &JsonConfig{
		DatabaseDSN:         config.DatabaseDSN,
		S3RootUser:          config.S3RootUser,
		S3RootPassword:      config.S3RootPassword,
		S3Bucket:            config.S3Bucket,
		S3Region:            config.S3Region,
		S3BaseEndpoint:      config.S3BaseEndpoint,
		S3PublicBaseURL:     config.S3PublicBaseURL,
		S3Folder:            config.S3Folder,
		FFprobePath:         config.FFprobePath,
		FFmpegPath:          config.FFmpegPath,
		PdftoppmPath:        config.PdftoppmPath,
		SofficePath:         config.SofficePath,
		TempRoot:            config.TempRoot,
		PreviewWidth:        config.PreviewWidth,
		PreviewHeight:       config.PreviewHeight,
		ThumbnailSize:       config.ThumbnailSize,
		JPEGQuality:         config.JPEGQuality,
		RenderDPI:           config.RenderDPI,
		RenderAttempts:      config.RenderAttempts,
		RenderBackoff:       timex.Duration{Duration: config.RenderBackoff},
		TypePolicyFile:      config.TypePolicyFile,
		StreamingPresetFile: config.StreamingPresetFile,
		StreamingPreset:     config.StreamingPreset,
		TranscodeWorkers:    config.TranscodeWorkers,
		TranscodeQueue:      config.TranscodeQueue,
		DownloadURLTTL:      timex.Duration{Duration: config.DownloadURLTTL},
		MetricsAddr:         config.MetricsAddr,
		LogLevel:            config.LogLevel,
	}
}

func (c *JsonConfig) apply(config *Config) {
	config.DatabaseDSN = c.DatabaseDSN
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.S3PublicBaseURL = c.S3PublicBaseURL
	config.S3Folder = c.S3Folder
	config.FFprobePath = c.FFprobePath
	config.FFmpegPath = c.FFmpegPath
	config.PdftoppmPath = c.PdftoppmPath
	config.SofficePath = c.SofficePath
	config.TempRoot = c.TempRoot
	config.PreviewWidth = c.PreviewWidth
	config.PreviewHeight = c.PreviewHeight
	config.ThumbnailSize = c.ThumbnailSize
	config.JPEGQuality = c.JPEGQuality
	config.RenderDPI = c.RenderDPI
	config.RenderAttempts = c.RenderAttempts
	config.RenderBackoff = c.RenderBackoff.Duration
	config.TypePolicyFile = c.TypePolicyFile
	config.StreamingPresetFile = c.StreamingPresetFile
	config.StreamingPreset = c.StreamingPreset
	config.TranscodeWorkers = c.TranscodeWorkers
	config.TranscodeQueue = c.TranscodeQueue
	config.DownloadURLTTL = c.DownloadURLTTL.Duration
	config.MetricsAddr = c.MetricsAddr
	config.LogLevel = c.LogLevel
}
