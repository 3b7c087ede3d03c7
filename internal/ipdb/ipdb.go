package ipdb

import (
	"net/netip"
	"os"
	"sort"
)

// Info is the enrichment result of a successful range lookup (spec.md §4.2).
type Info struct {
	CountryCode, CountryName string
	ASN                      uint32
	ASName                   string
}

// Database is the in-memory, immutable-after-load IP/country/ASN/service
// database. Ranges are kept sorted by IPFrom so lookups are a binary
// search followed by a containment check, grounded on original_source's
// db/ip.rs range-scan (there expressed as a SQL BETWEEN query; here as
// sort.Search since SPEC_FULL.md's binary blobs have no query engine
// behind them).
type Database struct {
	v4           []Ipv4Record
	v6           []Ipv6Record
	countryNames map[string]string
	asNames      map[uint32]string
	services     map[uint16]string
}

// New returns an empty database; every lookup misses until Load*.
func New() *Database {
	return &Database{
		countryNames: make(map[string]string),
		asNames:      make(map[uint32]string),
		services:     make(map[uint16]string),
	}
}

// LoadFiles reads the five bundled blobs from the given paths. Any
// individual file may be empty-string to skip it (e.g. ipv6.bin absent
// on an IPv4-only host) — per spec.md §7, a missing IPDB is never fatal.
func LoadFiles(ipv4Path, ipv6Path, countryPath, asPath, servicePath string) (*Database, error) {
	db := New()
	if ipv4Path != "" {
		f, err := os.Open(ipv4Path)
		if err != nil {
			return nil, err
		}
		recs, err := decodeIpv4Records(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		db.v4 = recs
	}
	if ipv6Path != "" {
		f, err := os.Open(ipv6Path)
		if err != nil {
			return nil, err
		}
		recs, err := decodeIpv6Records(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		db.v6 = recs
	}
	if countryPath != "" {
		f, err := os.Open(countryPath)
		if err != nil {
			return nil, err
		}
		recs, err := decodeCountryRecords(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			db.countryNames[r.CountryCode] = r.CountryName
		}
	}
	if asPath != "" {
		f, err := os.Open(asPath)
		if err != nil {
			return nil, err
		}
		recs, err := decodeASRecords(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			db.asNames[r.ASN] = r.ASName
		}
	}
	if servicePath != "" {
		f, err := os.Open(servicePath)
		if err != nil {
			return nil, err
		}
		recs, err := decodeServiceRecords(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			db.services[r.Port] = r.ServiceName
		}
	}
	db.sortRanges()
	return db, nil
}

// LoadBlob builds a database from already-decoded records, used by
// tests and by load_ipdb when the blobs arrive over the wire rather than
// as files.
func LoadBlob(v4 []Ipv4Record, v6 []Ipv6Record, countries []CountryRecord, ases []ASRecord, services []ServiceRecord) *Database {
	db := New()
	db.v4 = v4
	db.v6 = v6
	for _, r := range countries {
		db.countryNames[r.CountryCode] = r.CountryName
	}
	for _, r := range ases {
		db.asNames[r.ASN] = r.ASName
	}
	for _, r := range services {
		db.services[r.Port] = r.ServiceName
	}
	db.sortRanges()
	return db
}

func (db *Database) sortRanges() {
	sort.Slice(db.v4, func(i, j int) bool { return db.v4[i].IPFrom < db.v4[j].IPFrom })
	sort.Slice(db.v6, func(i, j int) bool { return db.v6[i].IPFrom.Less(db.v6[j].IPFrom) })
}

// LookupV4 performs the inclusive range search spec.md §4.2 describes.
// A miss returns ok=false; it is never fatal to the caller.
func (db *Database) LookupV4(addr netip.Addr) (Info, bool) {
	if !addr.Is4() {
		return Info{}, false
	}
	b := addr.As4()
	ip := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	i := sort.Search(len(db.v4), func(i int) bool { return db.v4[i].IPFrom > ip })
	if i == 0 {
		return Info{}, false
	}
	rec := db.v4[i-1]
	if ip < rec.IPFrom || ip > rec.IPTo {
		return Info{}, false
	}
	return db.resolve(rec.CountryCode, rec.ASN), true
}

// LookupV6 is LookupV4's IPv6 counterpart, keyed on Uint128.
func (db *Database) LookupV6(addr netip.Addr) (Info, bool) {
	if !addr.Is6() {
		return Info{}, false
	}
	ip := Uint128FromBytes(addr.As16())
	// Find the first record whose IPFrom is > ip, then step back one.
	i := sort.Search(len(db.v6), func(i int) bool { return ip.Less(db.v6[i].IPFrom) })
	if i == 0 {
		return Info{}, false
	}
	rec := db.v6[i-1]
	if ip.Less(rec.IPFrom) || rec.IPTo.Less(ip) {
		return Info{}, false
	}
	return db.resolve(rec.CountryCode, rec.ASN), true
}

// Lookup dispatches on address family.
func (db *Database) Lookup(addr netip.Addr) (Info, bool) {
	if addr.Is4() {
		return db.LookupV4(addr)
	}
	return db.LookupV6(addr)
}

func (db *Database) resolve(countryCode string, asn uint32) Info {
	return Info{
		CountryCode: countryCode,
		CountryName: db.countryNames[countryCode],
		ASN:         asn,
		ASName:      db.asNames[asn],
	}
}

// ServiceName looks up the well-known name of a TCP port (spec.md
// §4.7's get_top_services join). A miss returns "", false.
func (db *Database) ServiceName(port uint16) (string, bool) {
	name, ok := db.services[port]
	return name, ok
}
