package auth

import (
	"fmt"
	"strings"
)

// Credential 一个签名客户端的凭证。
type Credential struct {
	ClientID string
	Secret   []byte
}

// CredentialLookup 按 client_id 查找密钥。
type CredentialLookup interface {
	Lookup(clientID string) ([]byte, bool)
}

// CredentialStore 启动时构建的只读凭证表，可无锁并发读取。
type CredentialStore struct {
	secrets map[string][]byte
}

// NewCredentialStore 构建凭证表。重复的 client_id 以先出现者为准。
func NewCredentialStore(creds ...Credential) (*CredentialStore, error) {
	secrets := make(map[string][]byte, len(creds))
	for i, c := range creds {
		id := strings.TrimSpace(c.ClientID)
		if id == "" {
			return nil, fmt.Errorf("auth: 第 %d 个凭证缺少 client_id", i)
		}
		if len(c.Secret) == 0 {
			return nil, fmt.Errorf("auth: 客户端 %q 缺少 secret", id)
		}
		if _, ok := secrets[id]; ok {
			continue
		}
		secret := make([]byte, len(c.Secret))
		copy(secret, c.Secret)
		secrets[id] = secret
	}
	return &CredentialStore{secrets: secrets}, nil
}

// Lookup 实现 CredentialLookup。
func (s *CredentialStore) Lookup(clientID string) ([]byte, bool) {
	secret, ok := s.secrets[clientID]
	return secret, ok
}

// Len 返回客户端数量。
func (s *CredentialStore) Len() int {
	return len(s.secrets)
}
