package security

import (
	"bytes"
	"testing"

	"github.com/cuemby/labdeck/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecretsManager(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32)},
		{name: "invalid short key", key: make([]byte, 16), wantErr: true},
		{name: "invalid long key", key: make([]byte, 64), wantErr: true},
		{name: "empty key", key: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSecretsManager(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSecretsManager() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && sm == nil {
				t.Error("NewSecretsManager() returned nil without error")
			}
		})
	}
}

func TestNewSecretsManagerFromPassword(t *testing.T) {
	sm, err := NewSecretsManagerFromPassword("labdeck-secret")
	require.NoError(t, err)
	assert.NotNil(t, sm)

	_, err = NewSecretsManagerFromPassword("")
	assert.Error(t, err)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := make([]byte, 32)
	copy(key, []byte("test-encryption-key-32-bytes-!!"))

	sm, err := NewSecretsManager(key)
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "simple string", plaintext: []byte("hello world")},
		{name: "binary data", plaintext: []byte{0x00, 0x01, 0x02, 0xFF, 0xFE, 0xFD}},
		{name: "large data", plaintext: bytes.Repeat([]byte("test"), 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := sm.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, ciphertext)

			decrypted, err := sm.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	sm, err := NewSecretsManager(make([]byte, 32))
	require.NoError(t, err)

	a, err := sm.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := sm.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncryptDecrypt_Errors(t *testing.T) {
	sm, _ := NewSecretsManager(make([]byte, 32))

	_, err := sm.Encrypt(nil)
	assert.Error(t, err)
	_, err = sm.Encrypt([]byte{})
	assert.Error(t, err)

	tests := []struct {
		name       string
		ciphertext []byte
	}{
		{name: "empty data", ciphertext: []byte{}},
		{name: "nil data", ciphertext: nil},
		{name: "too short data", ciphertext: []byte{0x01, 0x02}},
		{name: "corrupted data", ciphertext: bytes.Repeat([]byte("x"), 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sm.Decrypt(tt.ciphertext)
			assert.Error(t, err)
		})
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	sm1, _ := NewSecretsManagerFromPassword("key-one")
	sm2, _ := NewSecretsManagerFromPassword("key-two")

	ciphertext, err := sm1.Encrypt([]byte("secret data"))
	require.NoError(t, err)

	_, err = sm2.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestInstancePassword(t *testing.T) {
	sm, err := NewSecretsManagerFromPassword("labdeck-secret")
	require.NoError(t, err)

	inst := &types.Instance{ID: 3, Name: "qbit", Type: types.PluginTypeQBittorrent}

	_, err = sm.InstancePassword(inst)
	assert.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, sm.SealInstancePassword(inst, "adminadmin"))
	assert.NotEmpty(t, inst.Password)
	assert.NotContains(t, string(inst.Password), "adminadmin")

	password, err := sm.InstancePassword(inst)
	require.NoError(t, err)
	assert.Equal(t, "adminadmin", password)

	require.NoError(t, sm.SealInstancePassword(inst, ""))
	assert.Nil(t, inst.Password)

	assert.Error(t, sm.SealInstancePassword(nil, "x"))
	_, err = sm.InstancePassword(nil)
	assert.Error(t, err)
}
