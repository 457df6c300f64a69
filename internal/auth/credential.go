package auth

import "fmt"

// CredentialType identifies which variant of device credential a Store
// holds.
type CredentialType int

const (
	// CredentialNone is the transient placeholder before a Store is
	// fully constructed. It is never observed once New succeeds.
	CredentialNone CredentialType = iota
	// CredentialDeviceKey is a symmetric key; the core mints and
	// refreshes SAS tokens from it.
	CredentialDeviceKey
	// CredentialDeviceSASToken is a pre-minted SAS token supplied by the
	// caller; the core submits it as-is and never refreshes it.
	CredentialDeviceSASToken
	// CredentialX509 is recognized but not acted on by this core; all
	// TLS-layer credential handling is delegated elsewhere.
	CredentialX509
)

func (t CredentialType) String() string {
	switch t {
	case CredentialDeviceKey:
		return "device_key"
	case CredentialDeviceSASToken:
		return "device_sas_token"
	case CredentialX509:
		return "x509"
	default:
		return "none"
	}
}

// Credential is a tagged variant carrying exactly the data its Type implies.
type Credential struct {
	Type  CredentialType
	Key   []byte // set iff Type == CredentialDeviceKey
	Token string // set iff Type == CredentialDeviceSASToken
}

// Identity is a device's (device_id, hub_fqdn) pair, immutable once a Store
// is constructed from it.
type Identity struct {
	DeviceID string
	HubFQDN  string
}

// Store holds a device's identity and credential. It is a leaf component:
// it performs no I/O and depends on nothing else in the core.
type Store struct {
	identity   Identity
	credential Credential
}

// NewStore validates identity and credential and returns an owned Store.
// Exactly one of credential.Key / credential.Token must be set unless the
// credential is X509, in which case neither is required. Strings and byte
// slices are copied so the caller's buffers remain independent of the
// Store's.
func NewStore(identity Identity, credential Credential) (*Store, error) {
	if identity.DeviceID == "" {
		return nil, newErr("new_store", ErrKindInvalidConfig, fmt.Errorf("device_id is required"))
	}
	if identity.HubFQDN == "" {
		return nil, newErr("new_store", ErrKindInvalidConfig, fmt.Errorf("hub_fqdn is required"))
	}

	hasKey := len(credential.Key) > 0
	hasToken := credential.Token != ""

	switch credential.Type {
	case CredentialDeviceKey:
		if !hasKey || hasToken {
			return nil, newErr("new_store", ErrKindInvalidConfig, fmt.Errorf("device_key credential requires exactly a key"))
		}
	case CredentialDeviceSASToken:
		if !hasToken || hasKey {
			return nil, newErr("new_store", ErrKindInvalidConfig, fmt.Errorf("device_sas_token credential requires exactly a token"))
		}
	case CredentialX509:
		if hasKey || hasToken {
			return nil, newErr("new_store", ErrKindInvalidConfig, fmt.Errorf("x509 credential carries no key or token"))
		}
	default:
		return nil, newErr("new_store", ErrKindInvalidConfig, fmt.Errorf("exactly one of device_sas_token, device_key must be present"))
	}

	s := &Store{
		identity: Identity{
			DeviceID: identity.DeviceID,
			HubFQDN:  identity.HubFQDN,
		},
		credential: Credential{Type: credential.Type, Token: credential.Token},
	}
	if hasKey {
		s.credential.Key = append([]byte(nil), credential.Key...)
	}
	return s, nil
}

// DeviceID returns the device identifier.
func (s *Store) DeviceID() string { return s.identity.DeviceID }

// HubFQDN returns the hub fully-qualified domain name.
func (s *Store) HubFQDN() string { return s.identity.HubFQDN }

// CredentialType returns the credential variant this Store holds.
func (s *Store) CredentialType() CredentialType { return s.credential.Type }

// Credential returns a copy of the held credential.
func (s *Store) Credential() Credential {
	c := Credential{Type: s.credential.Type, Token: s.credential.Token}
	if len(s.credential.Key) > 0 {
		c.Key = append([]byte(nil), s.credential.Key...)
	}
	return c
}

// Audience builds the CBS audience string "{hub_fqdn}/devices/{device_id}".
//
// The original C source declares create_devices_path as (device_id, fqdn)
// but both call sites pass (fqdn, device_id); this Store picks the single
// unambiguous byte sequence the call sites actually produce and names the
// parameters after what they are, not after the source's swapped
// declaration (spec.md §9 Open Question 1).
func (s *Store) Audience() string {
	return fmt.Sprintf("%s/devices/%s", s.identity.HubFQDN, s.identity.DeviceID)
}
