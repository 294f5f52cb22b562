package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

const DefaultRegion = "us-east-1" // Cost Explorer is only served from us-east-1

func LoadConfig(ctx context.Context, profile string) (*awssdk.Config, error) {
	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithSharedConfigProfile(profile),
		config.WithDefaultRegion(DefaultRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	// Test the credentials
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("invalid AWS credentials for profile %s: %w", profile, err)
	}
	return &awsCfg, nil
}
