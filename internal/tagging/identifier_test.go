package tagging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/iac-studio/envforge/pkg/errors"
)

func TestResourceIDDeterministic(t *testing.T) {
	owners := []Owner{
		ProjectOwner("acme"),
		PROwner("acme", "42"),
		DeploymentOwner("acme", "staging"),
	}
	for _, o := range owners {
		first, err := ResourceID(o)
		require.NoError(t, err)
		second, err := ResourceID(o)
		require.NoError(t, err)
		assert.Equal(t, first, second, o.String())
	}
}

func TestResourceIDShapes(t *testing.T) {
	rid, err := ResourceID(ProjectOwner("acme"))
	require.NoError(t, err)
	assert.Equal(t, "ef--pid-acme", rid)

	rid, err = ResourceID(PROwner("acme", "42"))
	require.NoError(t, err)
	assert.Equal(t, "ef--pid-acme--pr-42", rid)

	rid, err = ResourceID(DeploymentOwner("acme", "staging"))
	require.NoError(t, err)
	assert.Equal(t, "ef--pid-acme--deployment-staging", rid)
}

func TestResourceIDDistinguishesOwners(t *testing.T) {
	seen := map[string]Owner{}
	for _, o := range []Owner{
		ProjectOwner("acme"),
		ProjectOwner("acme-pr-1"),
		PROwner("acme", "1"),
		PROwner("acme", "11"),
		DeploymentOwner("acme", "1"),
		DeploymentOwner("acme-staging", "x"),
		DeploymentOwner("acme", "staging-x"),
	} {
		rid, err := ResourceID(o)
		require.NoError(t, err)
		prev, dup := seen[rid]
		require.False(t, dup, "%v and %v collide on %q", prev, o, rid)
		seen[rid] = o
	}
}

func TestResourceIDRejectsBadInput(t *testing.T) {
	for name, o := range map[string]Owner{
		"empty project":       {},
		"blank project":       {ProjectID: "  "},
		"separator":           {ProjectID: "a--b"},
		"pr and deployment":   {ProjectID: "acme", PR: "1", Deployment: "staging"},
		"separator in pr":     {ProjectID: "acme", PR: "1--2"},
		"separator in deploy": {ProjectID: "acme", Deployment: "x--y"},
	} {
		_, err := ResourceID(o)
		require.Error(t, err, name)
		assert.True(t, appErr.IsCode(err, appErr.CodeInvalid), name)
	}
}

func TestParseResourceIDRoundTrip(t *testing.T) {
	for _, o := range []Owner{
		ProjectOwner("acme"),
		PROwner("acme", "7"),
		DeploymentOwner("acme", "staging"),
	} {
		rid, err := ResourceID(o)
		require.NoError(t, err)
		got, err := ParseResourceID(rid)
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}

	_, err := ParseResourceID("sg-12345")
	assert.Error(t, err)
	_, err = ParseResourceID("ef--pid-acme--bogus-1")
	assert.Error(t, err)
}

func TestSubdomains(t *testing.T) {
	d, err := DeploymentSubdomain("acme", "master")
	require.NoError(t, err)
	assert.Equal(t, "acme", d)

	d, err = DeploymentSubdomain("acme", "staging")
	require.NoError(t, err)
	assert.Equal(t, "acme-staging", d)

	p, err := PRSubdomain("acme", "42")
	require.NoError(t, err)
	assert.Equal(t, "acme-pr-42", p)

	again, _ := PRSubdomain("acme", "42")
	assert.Equal(t, p, again)

	_, err = PRSubdomain("", "42")
	assert.Error(t, err)
	_, err = DeploymentSubdomain("acme", "")
	assert.Error(t, err)
}
