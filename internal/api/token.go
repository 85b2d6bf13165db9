package api

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
)

// SecretsAPI is the slice of the Secrets Manager client the token fallback
// needs
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretsClient builds a Secrets Manager client from the default AWS
// credential chain
func NewSecretsClient(ctx context.Context, region string) (SecretsAPI, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// FetchToken retrieves the bearer token from Secrets Manager. The secret is
// a JSON object; the value under "token" wins, otherwise the first value is
// taken.
func FetchToken(ctx context.Context, sm SecretsAPI, secretID string) (string, error) {
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretID,
	})
	if err != nil {
		return "", resterrors.NewAuthError(resterrors.ErrCodeSecretFetch,
			fmt.Sprintf("reading secret %s failed", secretID), err)
	}
	if out.SecretString == nil {
		return "", resterrors.NewAuthError(resterrors.ErrCodeSecretFetch,
			fmt.Sprintf("secret %s has no string value", secretID), nil)
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		// Plain-string secrets hold the token directly.
		return *out.SecretString, nil
	}
	if token, ok := values["token"]; ok && token != "" {
		return token, nil
	}
	for _, v := range values {
		if v != "" {
			return v, nil
		}
	}
	return "", resterrors.NewAuthError(resterrors.ErrCodeMissingToken,
		fmt.Sprintf("secret %s holds no token", secretID), nil)
}
