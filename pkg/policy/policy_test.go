package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-labs/sentinel/pkg/contracts"
)

func testView() *contracts.VaultView {
	return &contracts.VaultView{
		OwnerID:       "alice.test",
		BeneficiaryID: "bob.test",
		VaultBalance:  "500",
		IsExpired:     true,
		IsYielding:    true,
	}
}

func TestEmptyPolicyPassesVerdictThrough(t *testing.T) {
	p, err := NewResolutionPolicy("")
	require.NoError(t, err)

	ok, err := p.PermitResolution(testView(), true, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.PermitResolution(testView(), false, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolicyGatesOnVaultFields(t *testing.T) {
	p, err := NewResolutionPolicy(`owner_dead && int(vault.vault_balance) < 1000`)
	require.NoError(t, err)

	ok, err := p.PermitResolution(testView(), true, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	rich := testView()
	rich.VaultBalance = "5000"
	ok, err = p.PermitResolution(rich, true, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "balance above the policy cap blocks resolution")

	// The verdict stays a hard requirement even when the expression
	// would permit.
	ok, err = p.PermitResolution(testView(), false, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBrokenExpressionFailsAtConstruction(t *testing.T) {
	_, err := NewResolutionPolicy(`vault.balance <`)
	assert.Error(t, err)
}

func TestNonBooleanExpressionRejected(t *testing.T) {
	p, err := NewResolutionPolicy(`vault.owner_id`)
	require.NoError(t, err)

	_, err = p.PermitResolution(testView(), true, time.Now())
	assert.Error(t, err)
}
