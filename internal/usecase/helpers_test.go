package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"hsmtrust/internal/domain"
	"hsmtrust/internal/infra/cesr"
	"hsmtrust/pkg/keylog"
)

type fakeRecordStore struct {
	mu      sync.Mutex
	records []string
	calls   int
	err     error
}

func (s *fakeRecordStore) FetchAll(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]string(nil), s.records...), nil
}

func (s *fakeRecordStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeAuthorizationStore struct {
	envelopes map[string]string
}

func (s *fakeAuthorizationStore) Get(ctx context.Context, identity string) (string, error) {
	raw, ok := s.envelopes[identity]
	if !ok {
		return "", domain.ErrNotFound
	}
	return raw, nil
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (r *fakeAuditRepo) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return domain.AuditEvent{}, r.err
	}
	event.Seq = int64(len(r.events) + 1)
	r.events = append(r.events, event)
	return event, nil
}

func (r *fakeAuditRepo) ListByIdentity(ctx context.Context, identity string) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.AuditEvent{}
	for _, event := range r.events {
		if event.Identity == identity {
			out = append(out, event)
		}
	}
	return out, nil
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

type chainFixture struct {
	signers []*cesr.Secp256r1Signer
	records []keylog.Record
	hasher  *cesr.Blake3Hasher
}

func (f chainFixture) prefix() string {
	return f.records[0].Entry.Payload.Prefix
}

func (f chainFixture) raws() []string {
	out := make([]string, len(f.records))
	for i, record := range f.records {
		out[i] = record.Raw
	}
	return out
}

func (f chainFixture) head() keylog.Record {
	return f.records[len(f.records)-1]
}

// buildChain authors a valid chain of length records. Record i is created at
// base plus i steps and signed by signer i, whose successor's key was
// committed by record i-1.
func buildChain(t *testing.T, length int, base time.Time, step time.Duration) chainFixture {
	t.Helper()

	hasher := cesr.NewBlake3Hasher()
	signers := make([]*cesr.Secp256r1Signer, length+1)
	for i := range signers {
		signer, err := cesr.NewSecp256r1Signer()
		if err != nil {
			t.Fatalf("new signer: %v", err)
		}
		signers[i] = signer
	}

	records := make([]keylog.Record, length)
	genesis, err := keylog.Genesis(signers[0], signers[1].Public(), PurposeKeyAuthorization, base, hasher)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	records[0] = genesis

	for i := 1; i < length; i++ {
		record, err := keylog.Rotate(records[i-1].Entry.Payload, signers[i], signers[i+1].Public(), base.Add(time.Duration(i)*step), hasher)
		if err != nil {
			t.Fatalf("rotate %d: %v", i, err)
		}
		records[i] = record
	}

	return chainFixture{signers: signers, records: records, hasher: hasher}
}

func newVerifier(store RecordStore, now Clock) *KeyLogVerifier {
	return NewKeyLogVerifier(
		store,
		cesr.NewBlake3Hasher(),
		cesr.NewSecp256r1Verifier(),
		NewKeyCache(DefaultFreshnessWindow, now),
	)
}
