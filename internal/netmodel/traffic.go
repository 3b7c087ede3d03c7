package netmodel

// TrafficInfo is a commutative monoid under componentwise addition; the
// zero value is the identity. Counters are monotonically non-decreasing
// within a single store epoch (spec.md §3).
type TrafficInfo struct {
	PktIn, PktOut     uint64
	BytesIn, BytesOut uint64
}

// Add returns the componentwise sum, leaving both operands untouched.
func (t TrafficInfo) Add(o TrafficInfo) TrafficInfo {
	return TrafficInfo{
		PktIn:    t.PktIn + o.PktIn,
		PktOut:   t.PktOut + o.PktOut,
		BytesIn:  t.BytesIn + o.BytesIn,
		BytesOut: t.BytesOut + o.BytesOut,
	}
}

// AddIn accounts one ingress packet of the given length.
func (t *TrafficInfo) AddIn(packetLen uint64) {
	t.PktIn++
	t.BytesIn += packetLen
}

// AddOut accounts one egress packet of the given length.
func (t *TrafficInfo) AddOut(packetLen uint64) {
	t.PktOut++
	t.BytesOut += packetLen
}

// Bytes is the total traffic volume, used for top-N sorting.
func (t TrafficInfo) Bytes() uint64 {
	return t.BytesIn + t.BytesOut
}

func (t TrafficInfo) IsZero() bool {
	return t == TrafficInfo{}
}
