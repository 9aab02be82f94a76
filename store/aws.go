package store

import (
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/simpledb"
)

// AWSConfig holds what is needed to reach SimpleDB and S3.
type AWSConfig struct {
	Region string
	// Profile selects shared credentials when Key is empty.
	Profile string
	Key     string
	Secret  string
	// Endpoint overrides the service endpoint, for compatible services.
	Endpoint string
	// PathStyle forces path-style S3 addressing.
	PathStyle bool
}

// NewAWSSession creates a session from cfg. Static credentials win over a
// named profile; with neither, the default credential chain is used.
func NewAWSSession(cfg AWSConfig) (*session.Session, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("missing aws region")
	}
	config := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	switch {
	case cfg.Key != "":
		if cfg.Secret == "" {
			return nil, fmt.Errorf("missing aws secret for key %s", cfg.Key)
		}
		config.Credentials = credentials.NewStaticCredentials(cfg.Key, cfg.Secret, "")
	case cfg.Profile != "":
		config.Credentials = credentials.NewSharedCredentials("", cfg.Profile)
	}
	if cfg.Endpoint != "" {
		config.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.PathStyle {
		config.S3ForcePathStyle = aws.Bool(true)
	}

	slog.Debug("NewAWSSession - create session", "region", cfg.Region, "profile", cfg.Profile, "endpoint", cfg.Endpoint)
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return sess, nil
}

// NewAWSStores returns the SimpleDB attribute store and the S3 blob store
// for a session.
func NewAWSStores(sess *session.Session) (*SimpleDBStore, *S3Store) {
	return NewSimpleDBStore(simpledb.New(sess)), NewS3Store(s3.New(sess))
}
