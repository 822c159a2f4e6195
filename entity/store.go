package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/jmcleod/sslfixture/storage"
	"github.com/jmcleod/sslfixture/storage/memory"
	"ocm.software/open-component-model/bindings/go/dag"
)

const (
	// Namespace is the storage namespace holding entity records.
	Namespace       = "sslfixture"
	storeRecordType = "entity"
)

// Status is the generation state of a registered entity.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusIssued     Status = "issued"
)

// Record is a registered descriptor plus its bookkeeping.
type Record struct {
	Descriptor Descriptor
	Status     Status
	// Serial is the hex serial assigned by the signer; empty for roots.
	Serial   string
	IssuedAt time.Time

	seq     int
	version uint64
}

// Store maps entity names to descriptors and their issuance status. It is
// the single point where a signer reference is resolved, which is what
// enforces that a signer exists before anything it signs.
//
// The signee → signer relation is mirrored into a DAG so the declared
// hierarchy can be walked and ordered. A Store is not safe for concurrent
// use; issuance is sequential.
type Store struct {
	repo    storage.Repository
	records map[string]*Record
	graph   *dag.DirectedAcyclicGraph[string]
	nextSeq int
}

// NewStore returns an empty store persisting to repo. A nil repo keeps
// records in memory only.
func NewStore(repo storage.Repository) *Store {
	if repo == nil {
		repo = memory.NewRepository()
	}
	return &Store{
		repo:    repo,
		records: make(map[string]*Record),
		graph:   dag.NewDirectedAcyclicGraph[string](),
	}
}

// OpenStore rebuilds a store from records a previous run left in repo.
func OpenStore(repo storage.Repository) (*Store, error) {
	s := NewStore(repo)
	ids, err := s.repo.List(Namespace, storeRecordType)
	if err != nil {
		return nil, fmt.Errorf("listing entity records: %w", err)
	}
	loaded := make([]*Record, 0, len(ids))
	for _, id := range ids {
		raw, err := s.repo.Get(Namespace, storeRecordType, id)
		if err != nil {
			return nil, fmt.Errorf("loading entity %q: %w", id, err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding entity %q: %w", id, err)
		}
		loaded = append(loaded, rec)
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].seq < loaded[j].seq })
	for _, rec := range loaded {
		if err := s.link(rec.Descriptor); err != nil {
			return nil, err
		}
		s.records[rec.Descriptor.Name] = rec
		s.nextSeq = max(s.nextSeq, rec.seq+1)
	}
	return s, nil
}

// Register adds d in status registered. It fails with *DuplicateEntityError
// if the name is taken.
func (s *Store) Register(d Descriptor) error {
	if _, exists := s.records[d.Name]; exists {
		return &DuplicateEntityError{Name: d.Name}
	}
	if err := s.link(d); err != nil {
		return err
	}
	rec := &Record{Descriptor: d, Status: StatusRegistered, seq: s.nextSeq, version: 1}
	if err := s.persist(rec, 0); err != nil {
		_ = s.graph.DeleteVertex(d.Name)
		if errors.Is(err, storage.ErrCASFailed) {
			return &DuplicateEntityError{Name: d.Name}
		}
		return err
	}
	s.records[d.Name] = rec
	s.nextSeq++
	return nil
}

// link adds d to the graph with an edge to its signer and edges from any
// already-registered signees that name d as their signer.
func (s *Store) link(d Descriptor) error {
	if err := s.graph.AddVertex(d.Name); err != nil {
		return &DuplicateEntityError{Name: d.Name}
	}
	if d.Signer != "" && s.graph.Contains(d.Signer) {
		if err := s.graph.AddEdge(d.Name, d.Signer); err != nil {
			_ = s.graph.DeleteVertex(d.Name)
			return fmt.Errorf("entity %q: %v: %w", d.Name, err, ErrInvalid)
		}
	}
	for name, rec := range s.records {
		if rec.Descriptor.Signer != d.Name {
			continue
		}
		if err := s.graph.AddEdge(name, d.Name); err != nil {
			_ = s.graph.DeleteVertex(d.Name)
			return fmt.Errorf("entity %q: %v: %w", d.Name, err, ErrInvalid)
		}
	}
	return nil
}

// Resolve returns the registered descriptor called name, or
// *UnknownSignerError.
func (s *Store) Resolve(name string) (Descriptor, error) {
	rec, ok := s.records[name]
	if !ok {
		return Descriptor{}, &UnknownSignerError{Signer: name}
	}
	return rec.Descriptor, nil
}

// ResolveSigner resolves signee's signer and additionally requires it to
// have completed issuance. A registered but unissued signer is reported as
// *UnknownSignerError just like a missing one.
func (s *Store) ResolveSigner(signee Descriptor) (Descriptor, error) {
	rec, ok := s.records[signee.Signer]
	if !ok || rec.Status != StatusIssued {
		return Descriptor{}, &UnknownSignerError{Signer: signee.Signer, Entity: signee.Name}
	}
	return rec.Descriptor, nil
}

// Lookup returns the registered descriptor called name, or
// *UnknownEntityError.
func (s *Store) Lookup(name string) (Descriptor, error) {
	rec, ok := s.records[name]
	if !ok {
		return Descriptor{}, &UnknownEntityError{Name: name}
	}
	return rec.Descriptor, nil
}

// Record returns a copy of the bookkeeping for name.
func (s *Store) Record(name string) (Record, bool) {
	rec, ok := s.records[name]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// MarkIssued transitions name to issued and records its serial. Issuance
// happens exactly once per entity.
func (s *Store) MarkIssued(name, serial string, at time.Time) error {
	rec, ok := s.records[name]
	if !ok {
		return &UnknownEntityError{Name: name}
	}
	if rec.Status == StatusIssued {
		return fmt.Errorf("entity %q is already issued: %w", name, ErrDuplicateEntity)
	}
	next := *rec
	next.Status = StatusIssued
	next.Serial = serial
	next.IssuedAt = at.UTC()
	next.version = rec.version + 1
	if err := s.persist(&next, rec.version); err != nil {
		return err
	}
	*rec = next
	return nil
}

// Descriptors returns every registered descriptor in registration order.
func (s *Store) Descriptors() []Descriptor {
	recs := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]Descriptor, len(recs))
	for i, rec := range recs {
		out[i] = rec.Descriptor
	}
	return out
}

// Signees returns the names of registered entities whose signer is name,
// sorted.
func (s *Store) Signees(name string) []string {
	var out []string
	for id, v := range s.graph.Vertices {
		if _, ok := v.Edges[name]; ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Order returns all registered names with every signer before the entities
// it signs. Ties are broken alphabetically.
func (s *Store) Order() ([]string, error) {
	return s.graph.TopologicalSort()
}

type storedRecord struct {
	Name     string    `json:"name"`
	DN       string    `json:"dn"`
	Signer   string    `json:"signer,omitempty"`
	Password string    `json:"password,omitempty"`
	Encoding string    `json:"encoding"`
	AltNames []string  `json:"alt_names,omitempty"`
	Status   Status    `json:"status"`
	Serial   string    `json:"serial,omitempty"`
	IssuedAt time.Time `json:"issued_at,omitzero"`
	Seq      int       `json:"seq"`
}

func (s *Store) persist(rec *Record, expectedVersion uint64) error {
	password, err := rec.Descriptor.Password.Reveal()
	if err != nil {
		return fmt.Errorf("opening password for %q: %w", rec.Descriptor.Name, err)
	}
	data, err := json.Marshal(storedRecord{
		Name:     rec.Descriptor.Name,
		DN:       rec.Descriptor.DN.String(),
		Signer:   rec.Descriptor.Signer,
		Password: password,
		Encoding: rec.Descriptor.Encoding.String(),
		AltNames: rec.Descriptor.AltNames,
		Status:   rec.Status,
		Serial:   rec.Serial,
		IssuedAt: rec.IssuedAt,
		Seq:      rec.seq,
	})
	if err != nil {
		return fmt.Errorf("encoding entity %q: %w", rec.Descriptor.Name, err)
	}
	err = s.repo.PutCAS(Namespace, storeRecordType, rec.Descriptor.Name, expectedVersion,
		&storage.Record{Data: data, Version: rec.version})
	if err != nil {
		return fmt.Errorf("storing entity %q: %w", rec.Descriptor.Name, err)
	}
	return nil
}

func decodeRecord(raw *storage.Record) (*Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(raw.Data, &sr); err != nil {
		return nil, err
	}
	dn, err := ParseDN(sr.DN)
	if err != nil {
		return nil, err
	}
	enc, err := ParseKeyEncoding(sr.Encoding)
	if err != nil {
		return nil, err
	}
	return &Record{
		Descriptor: Descriptor{
			Name:     sr.Name,
			DN:       dn,
			Signer:   sr.Signer,
			Password: NewPassword(sr.Password),
			Encoding: enc,
			AltNames: sr.AltNames,
		},
		Status:   sr.Status,
		Serial:   sr.Serial,
		IssuedAt: sr.IssuedAt,
		seq:      sr.Seq,
		version:  raw.Version,
	}, nil
}
