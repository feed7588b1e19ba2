// Package secrets fetches the vault master key from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// MasterKeyField is the JSON key read when the secret payload is a JSON object.
const MasterKeyField = "VAULT_MASTER_KEY"

// GetSecretValueAPI is the subset of the Secrets Manager client used here.
type GetSecretValueAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewClient builds a Secrets Manager client from the default AWS credential chain.
func NewClient(ctx context.Context, region string) (*secretsmanager.Client, error) {
	var (
		cfg aws.Config
		err error
	)
	if region != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// FetchMasterKey reads secretID and returns the decoded master key. The payload is either
// base64 text or a JSON object holding base64 text under MasterKeyField.
func FetchMasterKey(ctx context.Context, client GetSecretValueAPI, secretID string) ([]byte, error) {
	if secretID == "" {
		return nil, errors.New("secrets: secret id is empty")
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return nil, fmt.Errorf("secrets: fetch %s: %w", secretID, err)
	}
	var payload string
	switch {
	case out.SecretString != nil:
		payload = *out.SecretString
	case len(out.SecretBinary) > 0:
		return out.SecretBinary, nil
	default:
		return nil, fmt.Errorf("secrets: %s has no payload", secretID)
	}
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "{") {
		var kv map[string]string
		if err := json.Unmarshal([]byte(payload), &kv); err != nil {
			return nil, fmt.Errorf("secrets: parse %s: %w", secretID, err)
		}
		v, ok := kv[MasterKeyField]
		if !ok {
			return nil, fmt.Errorf("secrets: %s has no %s field", secretID, MasterKeyField)
		}
		payload = v
	}
	return DecodeKey(payload)
}

// DecodeKey accepts standard or URL-safe base64, padded or not.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("secrets: master key is not valid base64")
}
