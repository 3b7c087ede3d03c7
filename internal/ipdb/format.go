// Package ipdb reads the four bundled geolocation/ASN binary databases
// and the port->service-name table (spec.md §6), and answers range
// lookups for the store's inline enrichment step (spec.md §4.2).
//
// The four files are a bespoke fixed-record binary format (little-endian,
// length-prefixed strings); there is no ecosystem serialization library
// for an ad hoc layout like this (see DESIGN.md), so this package decodes
// it directly with encoding/binary, the way original_source's db/ip.rs
// decodes its own on-disk representation by hand.
package ipdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

func readString(r *bufio.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString(w io.Writer, s string) error {
	if len(s) > 1<<32-1 {
		return fmt.Errorf("ipdb: string too long to encode: %d bytes", len(s))
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// Ipv4Record is one row of ipv4.bin.
type Ipv4Record struct {
	IPFrom, IPTo uint32
	CountryCode  string
	ASN          uint32
}

// Ipv6Record is one row of ipv6.bin.
type Ipv6Record struct {
	IPFrom, IPTo Uint128
	CountryCode  string
	ASN          uint32
}

// CountryRecord is one row of country.bin.
type CountryRecord struct {
	CountryCode, CountryName string
}

// ASRecord is one row of as.bin.
type ASRecord struct {
	ASN    uint32
	ASName string
}

// ServiceRecord is one row of tcp-service.bin.
type ServiceRecord struct {
	Port        uint16
	ServiceName string
}

func decodeIpv4Records(r io.Reader) ([]Ipv4Record, error) {
	br := bufio.NewReader(r)
	var out []Ipv4Record
	for {
		var from, to uint32
		if err := binary.Read(br, binary.LittleEndian, &from); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		if err := binary.Read(br, binary.LittleEndian, &to); err != nil {
			return nil, err
		}
		cc, err := readString(br)
		if err != nil {
			return nil, err
		}
		var asn uint32
		if err := binary.Read(br, binary.LittleEndian, &asn); err != nil {
			return nil, err
		}
		out = append(out, Ipv4Record{IPFrom: from, IPTo: to, CountryCode: cc, ASN: asn})
	}
}

func decodeIpv6Records(r io.Reader) ([]Ipv6Record, error) {
	br := bufio.NewReader(r)
	var out []Ipv6Record
	for {
		var from, to [16]byte
		if _, err := io.ReadFull(br, from[:]); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		if _, err := io.ReadFull(br, to[:]); err != nil {
			return nil, err
		}
		cc, err := readString(br)
		if err != nil {
			return nil, err
		}
		var asn uint32
		if err := binary.Read(br, binary.LittleEndian, &asn); err != nil {
			return nil, err
		}
		// u128 bounds are little-endian: low 64 bits first.
		ipFrom := Uint128{Lo: binary.LittleEndian.Uint64(from[:8]), Hi: binary.LittleEndian.Uint64(from[8:])}
		ipTo := Uint128{Lo: binary.LittleEndian.Uint64(to[:8]), Hi: binary.LittleEndian.Uint64(to[8:])}
		out = append(out, Ipv6Record{IPFrom: ipFrom, IPTo: ipTo, CountryCode: cc, ASN: asn})
	}
}

func decodeCountryRecords(r io.Reader) ([]CountryRecord, error) {
	br := bufio.NewReader(r)
	var out []CountryRecord
	for {
		cc, err := readString(br)
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		name, err := readString(br)
		if err != nil {
			return nil, err
		}
		out = append(out, CountryRecord{CountryCode: cc, CountryName: name})
	}
}

func decodeASRecords(r io.Reader) ([]ASRecord, error) {
	br := bufio.NewReader(r)
	var out []ASRecord
	for {
		var asn uint32
		if err := binary.Read(br, binary.LittleEndian, &asn); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		name, err := readString(br)
		if err != nil {
			return nil, err
		}
		out = append(out, ASRecord{ASN: asn, ASName: name})
	}
}

func decodeServiceRecords(r io.Reader) ([]ServiceRecord, error) {
	br := bufio.NewReader(r)
	var out []ServiceRecord
	for {
		var port uint16
		if err := binary.Read(br, binary.LittleEndian, &port); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		name, err := readString(br)
		if err != nil {
			return nil, err
		}
		out = append(out, ServiceRecord{Port: port, ServiceName: name})
	}
}

// The encode* functions are the inverse of the decode* functions above,
// used by this package's round-trip and LoadFiles tests to pin the
// little-endian/length-prefixed wire format spec.md §6 specifies as
// bit-exact.

func encodeIpv4Records(w io.Writer, recs []Ipv4Record) error {
	for _, r := range recs {
		if err := binary.Write(w, binary.LittleEndian, r.IPFrom); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, r.IPTo); err != nil {
			return err
		}
		if err := writeString(w, r.CountryCode); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, r.ASN); err != nil {
			return err
		}
	}
	return nil
}

func encodeIpv6Records(w io.Writer, recs []Ipv6Record) error {
	for _, r := range recs {
		var from, to [16]byte
		binary.LittleEndian.PutUint64(from[:8], r.IPFrom.Lo)
		binary.LittleEndian.PutUint64(from[8:], r.IPFrom.Hi)
		binary.LittleEndian.PutUint64(to[:8], r.IPTo.Lo)
		binary.LittleEndian.PutUint64(to[8:], r.IPTo.Hi)
		if _, err := w.Write(from[:]); err != nil {
			return err
		}
		if _, err := w.Write(to[:]); err != nil {
			return err
		}
		if err := writeString(w, r.CountryCode); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, r.ASN); err != nil {
			return err
		}
	}
	return nil
}

func encodeCountryRecords(w io.Writer, recs []CountryRecord) error {
	for _, r := range recs {
		if err := writeString(w, r.CountryCode); err != nil {
			return err
		}
		if err := writeString(w, r.CountryName); err != nil {
			return err
		}
	}
	return nil
}

func encodeASRecords(w io.Writer, recs []ASRecord) error {
	for _, r := range recs {
		if err := binary.Write(w, binary.LittleEndian, r.ASN); err != nil {
			return err
		}
		if err := writeString(w, r.ASName); err != nil {
			return err
		}
	}
	return nil
}

func encodeServiceRecords(w io.Writer, recs []ServiceRecord) error {
	for _, r := range recs {
		if err := binary.Write(w, binary.LittleEndian, r.Port); err != nil {
			return err
		}
		if err := writeString(w, r.ServiceName); err != nil {
			return err
		}
	}
	return nil
}
