package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `
[node]
Node = 1
Service = 1

[route "deep-space-relay"]
RemoteNode = 2
RemoteService = 1
Lifetime = 7200
ClassOfService = 2
IntegrityCheck = true
CipherSuite = 1
MaxBundleLength = 2048
AllowFragmentation = true
RequestCustody = true
`

func TestLoadContactPlan(t *testing.T) {
	plan, err := Load([]byte(samplePlan))
	require.NoError(t, err)

	assert.EqualValues(t, 1, plan.Local.Node)
	assert.EqualValues(t, 1, plan.Local.Service)

	r, ok := plan.Find("deep-space-relay")
	require.True(t, ok)
	assert.EqualValues(t, 2, r.Remote.Node)
	assert.EqualValues(t, 7200, r.Attributes.Lifetime)
	assert.True(t, r.Attributes.IntegrityCheck)
	assert.EqualValues(t, 1, r.Attributes.CipherSuite)
	assert.True(t, r.Attributes.RequestCustody)
}

func TestLoadContactPlanMissingNodeSection(t *testing.T) {
	_, err := Load([]byte(`[route "x"]`))
	assert.Error(t, err)
}
