package redis

import "fmt"

// KeyGenerator holds Redis key conventions for the interop domain, mirroring
// the reference implementation's RedisKeyGenerator. No core component calls
// these helpers: the identifier service builds its own lock key.
type KeyGenerator struct{}

func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// IdentifierSequenceKey addresses the cached next-candidate sequence for a
// fixed-prefix or numeric-range namespace.
func (k *KeyGenerator) IdentifierSequenceKey(namespaceSystem string) string {
	return fmt.Sprintf("interop:identifier:sequence:%s", namespaceSystem)
}

// IdentifierLockKey addresses the short-lived allocation lock for a
// (namespace, type) pair.
func (k *KeyGenerator) IdentifierLockKey(namespaceSystem, idType string) string {
	return fmt.Sprintf("interop:identifier:lock:%s:%s", namespaceSystem, idType)
}

// VenueLockKey addresses the per-venue exclusive transition lock guarding
// state-machine application.
func (k *KeyGenerator) VenueLockKey(venueID string) string {
	return fmt.Sprintf("interop:venue:lock:%s", venueID)
}

// EndpointStateKey addresses cached endpoint lifecycle state (the design point
// 4: started/stopped, connection pool, guarded by a per-endpoint mutex; cached
// here for cross-process visibility).
func (k *KeyGenerator) EndpointStateKey(endpointID string) string {
	return fmt.Sprintf("interop:endpoint:state:%s", endpointID)
}
