// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

import (
	"context"
	"net/url"
	"time"
)

// SSHCredential is a stored SSH keypair, addressed by token.
type SSHCredential struct {
	Token        string    `json:"token"`
	GatewayID    string    `json:"gateway_id"`
	UserName     string    `json:"user_name,omitempty"`
	PublicKey    string    `json:"public_key"`
	PrivateKey   string    `json:"private_key,omitempty"`
	Passphrase   string    `json:"passphrase,omitempty"`
	PersistedAt  time.Time `json:"persisted_at,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// PasswordCredential is a stored username/password pair, addressed by
// token.
type PasswordCredential struct {
	Token       string    `json:"token"`
	GatewayID   string    `json:"gateway_id"`
	UserName    string    `json:"user_name,omitempty"`
	LoginUser   string    `json:"login_user,omitempty"`
	Password    string    `json:"password,omitempty"`
	PersistedAt time.Time `json:"persisted_at,omitempty"`
	Description string    `json:"description,omitempty"`
}

// CredentialStore resolves credential tokens to secrets. Adaptors use
// it at connection time; the orchestration core only ever handles the
// opaque tokens.
type CredentialStore interface {
	GetSSHCredential(ctx context.Context, token, gatewayID string) (*SSHCredential, error)
	GetPasswordCredential(ctx context.Context, token, gatewayID string) (*PasswordCredential, error)
}

// CredentialClient is an HTTP CredentialStore backed by the credential
// store service.
type CredentialClient struct {
	*Client
}

// NewCredentialClient returns a CredentialStore talking to the given
// credential store host.
func NewCredentialClient(apiHost, authToken string) *CredentialClient {
	return &CredentialClient{Client: NewClient(apiHost, authToken)}
}

var _ CredentialStore = (*CredentialClient)(nil)

func (c *CredentialClient) GetSSHCredential(ctx context.Context, token, gatewayID string) (*SSHCredential, error) {
	var cred SSHCredential
	err := c.get(ctx, "/api/v1/credentials/ssh/"+token, url.Values{"gateway_id": {gatewayID}}, &cred)
	return &cred, err
}

func (c *CredentialClient) GetPasswordCredential(ctx context.Context, token, gatewayID string) (*PasswordCredential, error) {
	var cred PasswordCredential
	err := c.get(ctx, "/api/v1/credentials/password/"+token, url.Values{"gateway_id": {gatewayID}}, &cred)
	return &cred, err
}
