package mainconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/realty-inbox/internal/config"
)

func TestEndpointResolverRoutesLocalServices(t *testing.T) {
	resolve := endpointResolver("http://localhost:4566", "us-east-1")

	for _, svc := range []string{sqs.ServiceID, s3.ServiceID} {
		ep, err := resolve(svc, "us-east-1")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:4566", ep.URL)
		assert.True(t, ep.HostnameImmutable)
	}

	_, err := resolve(bedrockruntime.ServiceID, "us-east-1")
	var notFound *aws.EndpointNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestLoadAWSConfigUsesStaticCredentials(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "sa-east-1",
		AWSAccessKeyID:      "AKIDEXAMPLE",
		AWSSecretAccessKey:  "secret",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "sa-east-1", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
	assert.NotNil(t, awsCfg.EndpointResolverWithOptions)
}
