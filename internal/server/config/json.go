package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/haulhq/driveronboard/internal/flagx"
)

// JsonConfig is the intermediate DTO used only for reading JSON
// configuration files. Duration fields are accepted as integer hours and
// converted into time.Duration when copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP      string `json:"endpoint_addr_http"`
	DatabaseDSN           string `json:"database_dsn"`
	ResumeTokenSecret     string `json:"resume_token_secret"`
	ResumeTTLHours        int    `json:"resume_ttl_hours"`
	IdentityPepper        string `json:"identity_pepper"`
	IdentityEncryptionKey string `json:"identity_encryption_key"`
	S3RootUser            string `json:"s3_root_user"`
	S3RootPassword        string `json:"s3_root_password"`
	S3Bucket              string `json:"s3_bucket"`
	S3Region              string `json:"s3_region"`
	S3BaseEndpoint        string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. Absent fields keep their
// current values. If the file cannot be read or contains invalid JSON, the
// function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.ResumeTokenSecret != "" {
		config.ResumeTokenSecret = c.ResumeTokenSecret
	}
	if c.ResumeTTLHours > 0 {
		config.ResumeTTL = time.Duration(c.ResumeTTLHours) * time.Hour
	}
	if c.IdentityPepper != "" {
		config.IdentityPepper = c.IdentityPepper
	}
	if c.IdentityEncryptionKey != "" {
		config.IdentityEncryptionKey = c.IdentityEncryptionKey
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
}
