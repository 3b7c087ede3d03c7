package ipdb

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIpv4RecordRoundTrip(t *testing.T) {
	want := []Ipv4Record{
		{IPFrom: ipv4ToInt(t, "93.184.216.0"), IPTo: ipv4ToInt(t, "93.184.216.255"), CountryCode: "US", ASN: 15133},
		{IPFrom: ipv4ToInt(t, "1.1.1.0"), IPTo: ipv4ToInt(t, "1.1.1.255"), CountryCode: "AU", ASN: 13335},
	}
	var buf bytes.Buffer
	require.NoError(t, encodeIpv4Records(&buf, want))

	got, err := decodeIpv4Records(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIpv6RecordRoundTrip(t *testing.T) {
	from := netip.MustParseAddr("2001:db8::")
	to := netip.MustParseAddr("2001:db8::ffff")
	want := []Ipv6Record{
		{IPFrom: Uint128FromBytes(from.As16()), IPTo: Uint128FromBytes(to.As16()), CountryCode: "JP", ASN: 2500},
	}
	var buf bytes.Buffer
	require.NoError(t, encodeIpv6Records(&buf, want))

	got, err := decodeIpv6Records(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCountryRecordRoundTrip(t *testing.T) {
	want := []CountryRecord{
		{CountryCode: "US", CountryName: "United States"},
		{CountryCode: "JP", CountryName: "Japan"},
	}
	var buf bytes.Buffer
	require.NoError(t, encodeCountryRecords(&buf, want))

	got, err := decodeCountryRecords(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestASRecordRoundTrip(t *testing.T) {
	want := []ASRecord{
		{ASN: 15133, ASName: "EDGECAST"},
		{ASN: 13335, ASName: "CLOUDFLARENET"},
	}
	var buf bytes.Buffer
	require.NoError(t, encodeASRecords(&buf, want))

	got, err := decodeASRecords(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestServiceRecordRoundTrip(t *testing.T) {
	want := []ServiceRecord{
		{Port: 443, ServiceName: "https"},
		{Port: 80, ServiceName: "http"},
	}
	var buf bytes.Buffer
	require.NoError(t, encodeServiceRecords(&buf, want))

	got, err := decodeServiceRecords(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestLoadFilesReadsBitExactBlobs exercises the on-disk path LoadBlob
// never touches: encode the five records to temp files the way the
// downloader would write them, then confirm LoadFiles produces a
// database whose lookups match LoadBlob's.
func TestLoadFilesReadsBitExactBlobs(t *testing.T) {
	dir := t.TempDir()

	ipv4Recs := []Ipv4Record{{IPFrom: ipv4ToInt(t, "93.184.216.0"), IPTo: ipv4ToInt(t, "93.184.216.255"), CountryCode: "US", ASN: 15133}}
	countryRecs := []CountryRecord{{CountryCode: "US", CountryName: "United States"}}
	asRecs := []ASRecord{{ASN: 15133, ASName: "EDGECAST"}}
	serviceRecs := []ServiceRecord{{Port: 443, ServiceName: "https"}}

	writeBlob(t, filepath.Join(dir, "ipv4.bin"), func(w *os.File) error { return encodeIpv4Records(w, ipv4Recs) })
	writeBlob(t, filepath.Join(dir, "country.bin"), func(w *os.File) error { return encodeCountryRecords(w, countryRecs) })
	writeBlob(t, filepath.Join(dir, "as.bin"), func(w *os.File) error { return encodeASRecords(w, asRecs) })
	writeBlob(t, filepath.Join(dir, "tcp-service.bin"), func(w *os.File) error { return encodeServiceRecords(w, serviceRecs) })

	db, err := LoadFiles(
		filepath.Join(dir, "ipv4.bin"),
		"",
		filepath.Join(dir, "country.bin"),
		filepath.Join(dir, "as.bin"),
		filepath.Join(dir, "tcp-service.bin"),
	)
	require.NoError(t, err)

	info, ok := db.LookupV4(netip.MustParseAddr("93.184.216.34"))
	require.True(t, ok)
	assert.Equal(t, "US", info.CountryCode)
	assert.Equal(t, "United States", info.CountryName)
	assert.EqualValues(t, 15133, info.ASN)
	assert.Equal(t, "EDGECAST", info.ASName)

	name, ok := db.ServiceName(443)
	require.True(t, ok)
	assert.Equal(t, "https", name)
}

func writeBlob(t *testing.T, path string, encode func(*os.File) error) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, encode(f))
}
