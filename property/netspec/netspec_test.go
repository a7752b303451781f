package netspec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginta1337/porto/property/netspec"
)

func TestParseSimpleKeywords(t *testing.T) {
	for _, kw := range []string{"none", "inherited", "autoconf eth0"} {
		specs, err := netspec.Parse(kw)
		require.NoError(t, err)
		require.Len(t, specs, 1)
	}
}

func TestParseEmptyValueRejected(t *testing.T) {
	_, err := netspec.Parse("")
	assert.Error(t, err)
}

func TestParseUnknownKeywordRejected(t *testing.T) {
	_, err := netspec.Parse("bogus")
	assert.Error(t, err)
}

func TestParseMultipleLines(t *testing.T) {
	specs, err := netspec.Parse("none; autoconf eth0")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, netspec.None, specs[0].Kind)
	assert.Equal(t, netspec.Autoconf, specs[1].Kind)
	assert.Equal(t, "eth0", specs[1].Iface)
}

func TestParseMacvlanWithModeMtuHw(t *testing.T) {
	specs, err := netspec.Parse("macvlan eth0 eth0.1 bridge 1500 hw")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	s := specs[0]
	assert.Equal(t, netspec.Macvlan, s.Kind)
	assert.Equal(t, "eth0", s.Master)
	assert.Equal(t, "eth0.1", s.Iface)
	assert.Equal(t, "bridge", s.Mode)
	assert.Equal(t, 1500, s.Mtu)
	assert.True(t, s.Hw)
}

func TestParseMacvlanUnrecognizedArgRejected(t *testing.T) {
	_, err := netspec.Parse("macvlan eth0 eth0.1 bogus")
	assert.Error(t, err)
}

func TestParseIpvlanRequiresMasterAndName(t *testing.T) {
	_, err := netspec.Parse("ipvlan eth0")
	assert.Error(t, err)

	specs, err := netspec.Parse("ipvlan eth0 eth0.1 l3")
	require.NoError(t, err)
	assert.Equal(t, "l3", specs[0].Mode)
}

func TestParseVethWithHwAndMtu(t *testing.T) {
	specs, err := netspec.Parse("veth veth0 br0 1400 hw")
	require.NoError(t, err)
	s := specs[0]
	assert.Equal(t, "veth0", s.Iface)
	assert.Equal(t, "br0", s.Master)
	assert.Equal(t, 1400, s.Mtu)
	assert.True(t, s.Hw)
}

func TestParseL3WithAndWithoutMaster(t *testing.T) {
	specs, err := netspec.Parse("L3 eth0")
	require.NoError(t, err)
	assert.Equal(t, "", specs[0].Arg)

	specs, err = netspec.Parse("L3 eth0 eth1")
	require.NoError(t, err)
	assert.Equal(t, "eth1", specs[0].Arg)
}

func TestParseNATOptionalName(t *testing.T) {
	specs, err := netspec.Parse("NAT")
	require.NoError(t, err)
	assert.Equal(t, "", specs[0].Arg)

	specs, err = netspec.Parse("NAT mynat")
	require.NoError(t, err)
	assert.Equal(t, "mynat", specs[0].Arg)
}

func TestParseMTURequiresNameAndInt(t *testing.T) {
	_, err := netspec.Parse("MTU eth0 notanumber")
	assert.Error(t, err)

	specs, err := netspec.Parse("MTU eth0 9000")
	require.NoError(t, err)
	assert.Equal(t, "eth0", specs[0].Iface)
	assert.Equal(t, 9000, specs[0].Mtu)
}

func TestParseContainerRequiresName(t *testing.T) {
	_, err := netspec.Parse("container")
	assert.Error(t, err)

	specs, err := netspec.Parse("container other")
	require.NoError(t, err)
	assert.Equal(t, "other", specs[0].Arg)
}

func TestFormatRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"none",
		"host eth0",
		"macvlan eth0 eth0.1 bridge 1500 hw",
		"L3 eth0 eth1",
		"NAT mynat",
		"MTU eth0 9000",
		"veth veth0 br0 1400 hw",
	} {
		specs, err := netspec.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, netspec.Format(specs))
	}
}

func TestHostWithoutIfaceFormatsBare(t *testing.T) {
	specs, err := netspec.Parse("host")
	require.NoError(t, err)
	assert.Equal(t, "host", netspec.Format(specs))
}
