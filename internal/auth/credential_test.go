package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreRequiresIdentity(t *testing.T) {
	_, err := NewStore(Identity{HubFQDN: testHubFQDN}, Credential{Type: CredentialDeviceKey, Key: []byte("k")})
	require.Error(t, err)

	_, err = NewStore(Identity{DeviceID: testDeviceID}, Credential{Type: CredentialDeviceKey, Key: []byte("k")})
	require.Error(t, err)
}

func TestNewStoreRejectsBothKeyAndToken(t *testing.T) {
	identity := Identity{DeviceID: testDeviceID, HubFQDN: testHubFQDN}

	_, err := NewStore(identity, Credential{Type: CredentialDeviceKey, Key: []byte("k"), Token: "t"})
	require.Error(t, err)
	kind, ok := Kind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindInvalidConfig, kind)
}

func TestNewStoreRejectsNeitherKeyNorToken(t *testing.T) {
	identity := Identity{DeviceID: testDeviceID, HubFQDN: testHubFQDN}

	_, err := NewStore(identity, Credential{Type: CredentialNone})
	require.Error(t, err)
}

func TestAudienceFormat(t *testing.T) {
	identity := Identity{DeviceID: testDeviceID, HubFQDN: testHubFQDN}
	store, err := NewStore(identity, Credential{Type: CredentialDeviceKey, Key: []byte("k")})
	require.NoError(t, err)

	assert.Equal(t, "hub.example.net/devices/dev1", store.Audience())
}

func TestStoreCopiesKeyIndependently(t *testing.T) {
	key := []byte("original")
	store, err := NewStore(Identity{DeviceID: testDeviceID, HubFQDN: testHubFQDN}, Credential{
		Type: CredentialDeviceKey,
		Key:  key,
	})
	require.NoError(t, err)

	key[0] = 'X'
	assert.Equal(t, "original", string(store.Credential().Key))
}

func TestX509CredentialCarriesNoSecret(t *testing.T) {
	store, err := NewStore(Identity{DeviceID: testDeviceID, HubFQDN: testHubFQDN}, Credential{Type: CredentialX509})
	require.NoError(t, err)
	assert.Equal(t, CredentialX509, store.CredentialType())
}
