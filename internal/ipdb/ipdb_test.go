package ipdb

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupV4RangeBoundaries(t *testing.T) {
	db := LoadBlob(
		[]Ipv4Record{{IPFrom: ipv4ToInt(t, "93.184.216.0"), IPTo: ipv4ToInt(t, "93.184.216.255"), CountryCode: "US", ASN: 15133}},
		nil,
		[]CountryRecord{{CountryCode: "US", CountryName: "United States"}},
		[]ASRecord{{ASN: 15133, ASName: "EDGECAST"}},
		nil,
	)

	for _, ip := range []string{"93.184.216.0", "93.184.216.34", "93.184.216.255"} {
		info, ok := db.LookupV4(netip.MustParseAddr(ip))
		require.True(t, ok, "expected hit for %s", ip)
		assert.Equal(t, "US", info.CountryCode)
		assert.Equal(t, "United States", info.CountryName)
		assert.EqualValues(t, 15133, info.ASN)
		assert.Equal(t, "EDGECAST", info.ASName)
	}

	_, ok := db.LookupV4(netip.MustParseAddr("93.184.215.255"))
	assert.False(t, ok, "one below the range must miss")
	_, ok = db.LookupV4(netip.MustParseAddr("93.184.217.0"))
	assert.False(t, ok, "one above the range must miss")
}

func TestLookupV6RangeBoundaries(t *testing.T) {
	from := netip.MustParseAddr("2001:db8::")
	to := netip.MustParseAddr("2001:db8::ffff")
	db := LoadBlob(nil,
		[]Ipv6Record{{IPFrom: Uint128FromBytes(from.As16()), IPTo: Uint128FromBytes(to.As16()), CountryCode: "JP", ASN: 2500}},
		[]CountryRecord{{CountryCode: "JP", CountryName: "Japan"}},
		[]ASRecord{{ASN: 2500, ASName: "TEST-AS"}},
		nil,
	)

	info, ok := db.LookupV6(netip.MustParseAddr("2001:db8::1"))
	require.True(t, ok)
	assert.Equal(t, "JP", info.CountryCode)

	_, ok = db.LookupV6(netip.MustParseAddr("2001:db8:0:1::"))
	assert.False(t, ok, "past the end of the range must miss")
}

func TestServiceNameLookup(t *testing.T) {
	db := LoadBlob(nil, nil, nil, nil, []ServiceRecord{{Port: 443, ServiceName: "https"}})
	name, ok := db.ServiceName(443)
	require.True(t, ok)
	assert.Equal(t, "https", name)

	_, ok = db.ServiceName(9999)
	assert.False(t, ok)
}

func ipv4ToInt(t *testing.T, s string) uint32 {
	t.Helper()
	addr := netip.MustParseAddr(s)
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
