package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/route53"
)

// Clients bundles the service clients envforge talks to.
type Clients struct {
	Config   aws.Config
	EC2      *ec2.Client
	Route53  *route53.Client
	ECR      *ecr.Client
	IAM      *iam.Client
	DynamoDB *dynamodb.Client
}

// LoadConfig resolves credentials through the default chain. An empty
// profile keeps the chain's own choice.
func LoadConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func New(cfg aws.Config) *Clients {
	return &Clients{
		Config:   cfg,
		EC2:      ec2.NewFromConfig(cfg),
		Route53:  route53.NewFromConfig(cfg),
		ECR:      ecr.NewFromConfig(cfg),
		IAM:      iam.NewFromConfig(cfg),
		DynamoDB: dynamodb.NewFromConfig(cfg),
	}
}

// Load is LoadConfig followed by New.
func Load(ctx context.Context, region, profile string) (*Clients, error) {
	cfg, err := LoadConfig(ctx, region, profile)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}
