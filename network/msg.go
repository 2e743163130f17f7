// Package network defines the three wire envelope types the arbiter
// exchanges with its peers, and their byte encoding (§4.5, §6).
package network

import (
	"encoding/binary"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set"
)

// HSID is a site identifier: an opaque, totally-ordered 64-bit value.
type HSID uint64

// SortHSIDs returns the ascending-sorted contents of a set<HSID>. Used
// everywhere a deterministic, cross-peer-stable ordering is required
// (tie-breaking, wire encoding).
func SortHSIDs(s mapset.Set) []HSID {
	out := make([]HSID, 0, s.Cardinality())
	for v := range s.Iter() {
		out = append(out, v.(HSID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewHSIDSet builds a mapset.Set holding the given HSIDs.
func NewHSIDSet(ids ...HSID) mapset.Set {
	s := mapset.NewThreadUnsafeSet()
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// SafeTxnEntry is one (site, safe txn id) pair of a sorted_map<hsid,i64>.
type SafeTxnEntry struct {
	Site HSID
	Txn  int64
}

// FaultMessage is the envelope the fault detector injects into the mailbox,
// and that survivors gossip onward, naming one suspected-failed site.
type FaultMessage struct {
	ReportingSite HSID
	FailedSite    HSID
	Witnessed     bool
	Survivors     []HSID // kept ascending-sorted
}

// NewFaultMessage sorts Survivors before returning, so every FaultMessage in
// the system is already in canonical form.
func NewFaultMessage(reporter, failed HSID, witnessed bool, survivors mapset.Set) *FaultMessage {
	return &FaultMessage{
		ReportingSite: reporter,
		FailedSite:    failed,
		Witnessed:     witnessed,
		Survivors:     SortHSIDs(survivors),
	}
}

func (fm *FaultMessage) SurvivorSet() mapset.Set {
	return NewHSIDSet(fm.Survivors...)
}

// SiteFailureMessage is what a site broadcasts during the send phase (and
// again when notifying danglers): its
// current survivor view, and the safe txn watermark it vouches for on
// behalf of every peer it currently has in trouble.
type SiteFailureMessage struct {
	Source     HSID
	Survivors  []HSID         // ascending-sorted
	SafeTxnIDs []SafeTxnEntry // ascending-sorted by Site
}

// NewSiteFailureMessage sorts both Survivors and SafeTxnIDs (§4.5: "sets are
// serialized as length-prefixed sorted arrays to stabilize encoding").
func NewSiteFailureMessage(source HSID, survivors mapset.Set, safeTxnIDs map[HSID]int64) *SiteFailureMessage {
	entries := make([]SafeTxnEntry, 0, len(safeTxnIDs))
	for site, txn := range safeTxnIDs {
		entries = append(entries, SafeTxnEntry{Site: site, Txn: txn})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Site < entries[j].Site })
	return &SiteFailureMessage{
		Source:     source,
		Survivors:  SortHSIDs(survivors),
		SafeTxnIDs: entries,
	}
}

func (m *SiteFailureMessage) SurvivorSet() mapset.Set {
	return NewHSIDSet(m.Survivors...)
}

func (m *SiteFailureMessage) SafeTxnMap() map[HSID]int64 {
	res := make(map[HSID]int64, len(m.SafeTxnIDs))
	for _, e := range m.SafeTxnIDs {
		res[e.Site] = e.Txn
	}
	return res
}

// SiteFailureForwardMessage wraps a SiteFailureMessage and tags the
// immediate sender (Reporter), so a non-witness receiving it can tell the
// relay apart from the original report.
type SiteFailureForwardMessage struct {
	Reporter HSID
	Inner    SiteFailureMessage
}

func NewSiteFailureForwardMessage(reporter HSID, inner *SiteFailureMessage) *SiteFailureForwardMessage {
	return &SiteFailureForwardMessage{Reporter: reporter, Inner: *inner}
}

// --- byte encoding (§4.5, §6, P5) ---
//
// Every envelope encodes as a 1-byte type tag followed by its fields in
// declaration order. uint64/int64 fields are big-endian fixed-width.
// Variable-length arrays are length-prefixed (uint32 count) followed by
// their sorted elements: encode() already guarantees canonical order,
// decode() trusts it verbatim rather than re-sorting.

const (
	tagFaultMessage byte = iota + 1
	tagSiteFailureMessage
	tagSiteFailureForwardMessage
)

func putHSID(buf []byte, v HSID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func putInt64(buf []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(buf, b[:]...)
}

func putUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func putHSIDSlice(buf []byte, ids []HSID) []byte {
	buf = putUint32(buf, uint32(len(ids)))
	for _, id := range ids {
		buf = putHSID(buf, id)
	}
	return buf
}

type byteReader struct {
	b []byte
}

func (r *byteReader) hsid() (HSID, error) {
	if len(r.b) < 8 {
		return 0, fmt.Errorf("network: truncated hsid")
	}
	v := HSID(binary.BigEndian.Uint64(r.b[:8]))
	r.b = r.b[8:]
	return v, nil
}

func (r *byteReader) int64() (int64, error) {
	if len(r.b) < 8 {
		return 0, fmt.Errorf("network: truncated int64")
	}
	v := int64(binary.BigEndian.Uint64(r.b[:8]))
	r.b = r.b[8:]
	return v, nil
}

func (r *byteReader) uint32() (uint32, error) {
	if len(r.b) < 4 {
		return 0, fmt.Errorf("network: truncated uint32")
	}
	v := binary.BigEndian.Uint32(r.b[:4])
	r.b = r.b[4:]
	return v, nil
}

func (r *byteReader) byte() (byte, error) {
	if len(r.b) < 1 {
		return 0, fmt.Errorf("network: truncated tag")
	}
	v := r.b[0]
	r.b = r.b[1:]
	return v, nil
}

func (r *byteReader) hsidSlice() ([]HSID, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	out := make([]HSID, n)
	for i := range out {
		out[i], err = r.hsid()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Encode serializes a FaultMessage to its canonical byte form.
func (fm *FaultMessage) Encode() []byte {
	buf := make([]byte, 0, 32+8*len(fm.Survivors))
	buf = append(buf, tagFaultMessage)
	buf = putHSID(buf, fm.ReportingSite)
	buf = putHSID(buf, fm.FailedSite)
	if fm.Witnessed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = putHSIDSlice(buf, fm.Survivors)
	return buf
}

// DecodeFaultMessage is the inverse of (*FaultMessage).Encode.
func DecodeFaultMessage(b []byte) (*FaultMessage, error) {
	r := &byteReader{b: b}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	if tag != tagFaultMessage {
		return nil, fmt.Errorf("network: wrong tag %d for FaultMessage", tag)
	}
	fm := &FaultMessage{}
	if fm.ReportingSite, err = r.hsid(); err != nil {
		return nil, err
	}
	if fm.FailedSite, err = r.hsid(); err != nil {
		return nil, err
	}
	wb, err := r.byte()
	if err != nil {
		return nil, err
	}
	fm.Witnessed = wb != 0
	if fm.Survivors, err = r.hsidSlice(); err != nil {
		return nil, err
	}
	return fm, nil
}

// Encode serializes a SiteFailureMessage to its canonical byte form.
func (m *SiteFailureMessage) Encode() []byte {
	buf := make([]byte, 0, 32+8*len(m.Survivors)+16*len(m.SafeTxnIDs))
	buf = m.encodeInto(buf, true)
	return buf
}

func (m *SiteFailureMessage) encodeInto(buf []byte, withTag bool) []byte {
	if withTag {
		buf = append(buf, tagSiteFailureMessage)
	}
	buf = putHSID(buf, m.Source)
	buf = putHSIDSlice(buf, m.Survivors)
	buf = putUint32(buf, uint32(len(m.SafeTxnIDs)))
	for _, e := range m.SafeTxnIDs {
		buf = putHSID(buf, e.Site)
		buf = putInt64(buf, e.Txn)
	}
	return buf
}

func decodeSiteFailureMessageBody(r *byteReader) (*SiteFailureMessage, error) {
	m := &SiteFailureMessage{}
	var err error
	if m.Source, err = r.hsid(); err != nil {
		return nil, err
	}
	if m.Survivors, err = r.hsidSlice(); err != nil {
		return nil, err
	}
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	m.SafeTxnIDs = make([]SafeTxnEntry, n)
	for i := range m.SafeTxnIDs {
		if m.SafeTxnIDs[i].Site, err = r.hsid(); err != nil {
			return nil, err
		}
		if m.SafeTxnIDs[i].Txn, err = r.int64(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DecodeSiteFailureMessage is the inverse of (*SiteFailureMessage).Encode.
func DecodeSiteFailureMessage(b []byte) (*SiteFailureMessage, error) {
	r := &byteReader{b: b}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	if tag != tagSiteFailureMessage {
		return nil, fmt.Errorf("network: wrong tag %d for SiteFailureMessage", tag)
	}
	return decodeSiteFailureMessageBody(r)
}

// Encode serializes a SiteFailureForwardMessage to its canonical byte form.
func (f *SiteFailureForwardMessage) Encode() []byte {
	buf := make([]byte, 0, 40+8*len(f.Inner.Survivors)+16*len(f.Inner.SafeTxnIDs))
	buf = append(buf, tagSiteFailureForwardMessage)
	buf = putHSID(buf, f.Reporter)
	buf = f.Inner.encodeInto(buf, false)
	return buf
}

// DecodeSiteFailureForwardMessage is the inverse of
// (*SiteFailureForwardMessage).Encode.
func DecodeSiteFailureForwardMessage(b []byte) (*SiteFailureForwardMessage, error) {
	r := &byteReader{b: b}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	if tag != tagSiteFailureForwardMessage {
		return nil, fmt.Errorf("network: wrong tag %d for SiteFailureForwardMessage", tag)
	}
	f := &SiteFailureForwardMessage{}
	if f.Reporter, err = r.hsid(); err != nil {
		return nil, err
	}
	inner, err := decodeSiteFailureMessageBody(r)
	if err != nil {
		return nil, err
	}
	f.Inner = *inner
	return f, nil
}

// PeekTag returns the message type tag without fully decoding, so the
// mailbox dispatcher can route by subject without a type switch on the
// decoded value. Mirrors the teacher's Mark-string dispatch in
// network/participant/conn.go, but tag-based instead of string-based
// since the wire format here is a fixed binary encoding, not JSON.
func PeekTag(b []byte) (byte, error) {
	if len(b) < 1 {
		return 0, fmt.Errorf("network: empty message")
	}
	return b[0], nil
}
