package api

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
)

type fakeSecrets struct {
	value *string
	err   error
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func strptr(s string) *string { return &s }

func TestFetchToken(t *testing.T) {
	tests := []struct {
		name     string
		secrets  *fakeSecrets
		want     string
		wantCode resterrors.ErrorCode
	}{
		{
			name:    "json secret with token key",
			secrets: &fakeSecrets{value: strptr(`{"token": "tok-1", "other": "x"}`)},
			want:    "tok-1",
		},
		{
			name:    "json secret without token key falls back to first value",
			secrets: &fakeSecrets{value: strptr(`{"api_key": "tok-2"}`)},
			want:    "tok-2",
		},
		{
			name:    "plain string secret",
			secrets: &fakeSecrets{value: strptr("tok-plain")},
			want:    "tok-plain",
		},
		{
			name:     "fetch failure",
			secrets:  &fakeSecrets{err: errors.New("access denied")},
			wantCode: resterrors.ErrCodeSecretFetch,
		},
		{
			name:     "empty json secret",
			secrets:  &fakeSecrets{value: strptr(`{}`)},
			wantCode: resterrors.ErrCodeMissingToken,
		},
		{
			name:     "no string value",
			secrets:  &fakeSecrets{},
			wantCode: resterrors.ErrCodeSecretFetch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FetchToken(context.Background(), tt.secrets, "clumio/token/bulk_restore")
			if tt.wantCode != "" {
				if resterrors.GetCode(err) != tt.wantCode {
					t.Fatalf("error = %v, want code %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchToken() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}
}
