// Package awsvpc manages the interface VPC endpoints that connect a
// VPC to an Atlas private endpoint service.
package awsvpc

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"atlasops"
)

// EC2API is the slice of the EC2 client the repository uses. Tests
// provide a fake.
type EC2API interface {
	DescribeVpcEndpoints(ctx context.Context, in *awsec2.DescribeVpcEndpointsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeVpcEndpointsOutput, error)
	CreateVpcEndpoint(ctx context.Context, in *awsec2.CreateVpcEndpointInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateVpcEndpointOutput, error)
	DeleteVpcEndpoints(ctx context.Context, in *awsec2.DeleteVpcEndpointsInput, optFns ...func(*awsec2.Options)) (*awsec2.DeleteVpcEndpointsOutput, error)
}

// Repository wraps the EC2 API for VPC endpoint lifecycle operations.
type Repository struct {
	client EC2API
}

// NewRepository creates a repository backed by a real EC2 client.
func NewRepository(cfg aws.Config) *Repository {
	return &Repository{client: awsec2.NewFromConfig(cfg)}
}

// NewRepositoryWithClient creates a repository over any EC2API
// implementation. Used by tests.
func NewRepositoryWithClient(client EC2API) *Repository {
	return &Repository{client: client}
}

// LoadConfig builds an AWS config for the region. When accessKeyID and
// secretAccessKey are both set they are used as static credentials;
// otherwise the default credential chain applies.
func LoadConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// FindEndpoint looks up the VPC endpoint attached to the given service
// inside vpcID. Endpoints already deleted or deleting are ignored. The
// bool is false when no live endpoint exists.
func (r *Repository) FindEndpoint(ctx context.Context, vpcID, serviceName string) (string, bool, error) {
	out, err := r.client.DescribeVpcEndpoints(ctx, &awsec2.DescribeVpcEndpointsInput{
		Filters: []types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("service-name"), Values: []string{serviceName}},
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("describe vpc endpoints in %s: %w", vpcID, err)
	}

	for _, ep := range out.VpcEndpoints {
		if ep.State == types.StateDeleted || ep.State == types.StateDeleting {
			continue
		}
		if ep.VpcEndpointId != nil {
			return *ep.VpcEndpointId, true, nil
		}
	}
	return "", false, nil
}

// DeleteEndpoint deletes one VPC endpoint by id.
func (r *Repository) DeleteEndpoint(ctx context.Context, endpointID string) error {
	out, err := r.client.DeleteVpcEndpoints(ctx, &awsec2.DeleteVpcEndpointsInput{
		VpcEndpointIds: []string{endpointID},
	})
	if err != nil {
		return fmt.Errorf("delete vpc endpoint %s: %w", endpointID, err)
	}
	for _, item := range out.Unsuccessful {
		if item.Error != nil && item.Error.Message != nil {
			return fmt.Errorf("delete vpc endpoint %s: %s", endpointID, *item.Error.Message)
		}
	}
	return nil
}

// CreateEndpoint creates an interface endpoint for the service inside
// the interconnect's VPC and returns the new endpoint id.
func (r *Repository) CreateEndpoint(ctx context.Context, ic atlasops.Interconnect, serviceName string) (string, error) {
	out, err := r.client.CreateVpcEndpoint(ctx, &awsec2.CreateVpcEndpointInput{
		VpcEndpointType:  types.VpcEndpointTypeInterface,
		VpcId:            aws.String(ic.VPCID),
		ServiceName:      aws.String(serviceName),
		SubnetIds:        []string{ic.SubnetID},
		SecurityGroupIds: []string{ic.SecurityGroupID},
	})
	if err != nil {
		return "", fmt.Errorf("create vpc endpoint in %s: %w", ic.VPCID, err)
	}
	if out.VpcEndpoint == nil || out.VpcEndpoint.VpcEndpointId == nil {
		return "", fmt.Errorf("create vpc endpoint in %s: response missing endpoint id", ic.VPCID)
	}
	return *out.VpcEndpoint.VpcEndpointId, nil
}
