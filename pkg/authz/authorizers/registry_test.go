package authorizers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFactory struct{ authorizer Authorizer }

func (f *mockFactory) ValidateConfig(json.RawMessage) error { return nil }
func (f *mockFactory) CreateAuthorizer(json.RawMessage, string) (Authorizer, error) {
	return f.authorizer, nil
}

type mockAuthorizer struct{}

func (*mockAuthorizer) AuthorizeWithJWTClaims(context.Context, MCPFeature, MCPOperation, string, map[string]interface{}) (bool, error) {
	return true, nil
}

func TestGetFactory_UnknownTypeIsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, GetFactory("nonexistent-type"))
}

func TestIsRegistered_UnknownTypeIsFalse(t *testing.T) {
	t.Parallel()
	assert.False(t, IsRegistered("nonexistent-type"))
}

func TestRegister_MakesFactoryRetrievable(t *testing.T) {
	testType := ConfigType("registry-test-type")
	require.False(t, IsRegistered(testType))

	Register(testType, &mockFactory{authorizer: &mockAuthorizer{}})

	assert.True(t, IsRegistered(testType))
	assert.Same(t, GetFactory(testType), GetFactory(testType))
	assert.Contains(t, RegisteredTypes(), testType)
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	testType := ConfigType("registry-test-duplicate-type")
	Register(testType, &mockFactory{authorizer: &mockAuthorizer{}})

	assert.Panics(t, func() {
		Register(testType, &mockFactory{})
	})
}
