package usecase

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"hsmtrust/internal/domain"
)

// PurposeKeyAuthorization is the purpose a chain entry must declare before
// its key may authorize anything.
const PurposeKeyAuthorization = "key-authorization"

// KeyLogVerifier validates signatures against HSM public keys whose
// provenance is a hash-linked rotation log. A verification probes the cache
// first; on a miss the entire log is refetched, every chain is revalidated
// end to end, and the cache is rebuilt from the requested identity's chain.
type KeyLogVerifier struct {
	Records RecordStore
	Hasher  Hasher
	Crypto  Verifier
	Cache   *KeyCache
	Audit   *AuditEmitter

	// rebuildMu serializes the miss path so concurrent misses collapse into
	// one store fetch instead of racing duplicate rebuilds.
	rebuildMu sync.Mutex
}

func NewKeyLogVerifier(records RecordStore, hasher Hasher, crypto Verifier, cache *KeyCache) *KeyLogVerifier {
	return &KeyLogVerifier{
		Records: records,
		Hasher:  hasher,
		Crypto:  crypto,
		Cache:   cache,
	}
}

// Verify checks signature over message against the key generation addressed
// by hsmGenerationID, after proving that generation belongs to hsmIdentity's
// validated rotation chain and is fresh enough to trust.
func (v *KeyLogVerifier) Verify(ctx context.Context, signature, hsmIdentity, hsmGenerationID, message string) error {
	cachedEntry, ok := v.Cache.Lookup(hsmGenerationID)
	if !ok {
		entry, err := v.rebuild(ctx, hsmIdentity, hsmGenerationID)
		if err != nil {
			return err
		}
		cachedEntry = entry
	}

	if cachedEntry.Prefix != hsmIdentity {
		return domain.ErrIncorrectIdentity
	}
	if cachedEntry.Purpose != PurposeKeyAuthorization {
		return domain.ErrIncorrectPurpose
	}

	return v.Crypto.Verify(message, signature, cachedEntry.PublicKey)
}

func (v *KeyLogVerifier) rebuild(ctx context.Context, hsmIdentity, hsmGenerationID string) (*domain.LogEntry, error) {
	v.rebuildMu.Lock()
	defer v.rebuildMu.Unlock()

	// Another caller may have rebuilt while we waited for the lock.
	if entry, ok := v.Cache.Lookup(hsmGenerationID); ok {
		return entry, nil
	}

	raws, err := v.Records.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, domain.ErrNoKeysFound
	}

	byPrefix, err := v.validateChains(raws)
	if err != nil {
		return nil, err
	}

	records, ok := byPrefix[hsmIdentity]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}

	cached := v.Cache.Rebuild(records)
	if v.Audit != nil {
		v.Audit.EmitCacheRebuilt(ctx, hsmIdentity, len(records), cached)
	}

	entry, ok := v.Cache.Lookup(hsmGenerationID)
	if !ok {
		return nil, domain.ErrNoValidKey
	}
	return entry, nil
}

type parsedRecord struct {
	entry   domain.LogEntry
	payload string // exact payload substring of the stored record
	sig     string
}

// validateChains parses every raw record, groups by prefix, and runs the two
// validation passes. Any failure rejects the whole run; nothing from a
// partially valid log is ever returned.
func (v *KeyLogVerifier) validateChains(raws []string) (map[string][]domain.LogEntry, error) {
	byPrefix := map[string][]parsedRecord{}
	order := []string{}

	for _, raw := range raws {
		if raw == "" {
			continue
		}

		record, payloadJSON, err := domain.ParseSignedRecord(raw)
		if err != nil {
			return nil, err
		}

		prefix := record.Payload.Prefix
		if _, ok := byPrefix[prefix]; !ok {
			order = append(order, prefix)
		}
		byPrefix[prefix] = append(byPrefix[prefix], parsedRecord{
			entry:   record.Payload,
			payload: payloadJSON,
			sig:     record.Signature,
		})
	}

	for _, prefix := range order {
		records := byPrefix[prefix]
		// Stable: duplicate sequence numbers keep arrival order here and are
		// rejected by the linkage pass.
		slices.SortStableFunc(records, func(a, b parsedRecord) int {
			return cmp.Compare(a.entry.SequenceNumber, b.entry.SequenceNumber)
		})
		byPrefix[prefix] = records
	}

	// Content and signature pass.
	for _, prefix := range order {
		for _, record := range byPrefix[prefix] {
			if record.entry.SequenceNumber == 0 {
				if err := v.verifyPrefixAndContent(record.payload, record.entry); err != nil {
					return nil, err
				}
			} else {
				if err := v.verifyContent(record.payload, record.entry); err != nil {
					return nil, err
				}
			}

			if err := v.Crypto.Verify(record.payload, record.sig, record.entry.PublicKey); err != nil {
				return nil, err
			}
		}
	}

	// Chain linkage pass.
	for _, prefix := range order {
		lastID := ""
		lastRotationHash := ""

		for i, record := range byPrefix[prefix] {
			entry := record.entry

			if entry.SequenceNumber != int64(i) {
				return nil, domain.ErrBadSequenceNumber
			}

			if entry.SequenceNumber != 0 {
				if entry.Previous == nil || *entry.Previous != lastID {
					return nil, domain.ErrBrokenChain
				}
				if v.Hasher.Sum(entry.PublicKey) != lastRotationHash {
					return nil, domain.ErrBadCommitment
				}
			}

			lastID = entry.ID
			lastRotationHash = entry.RotationHash
		}
	}

	out := make(map[string][]domain.LogEntry, len(byPrefix))
	for prefix, records := range byPrefix {
		entries := make([]domain.LogEntry, len(records))
		for i, record := range records {
			entries[i] = record.entry
		}
		out[prefix] = entries
	}
	return out, nil
}

// verifyPrefixAndContent applies the sequence-0 identity constraint on top
// of the common content check: a chain's prefix is its genesis record's id.
func (v *KeyLogVerifier) verifyPrefixAndContent(payloadJSON string, entry domain.LogEntry) error {
	if entry.ID != entry.Prefix {
		return domain.ErrSelfReferenceMismatch
	}
	return v.verifyContent(payloadJSON, entry)
}

// verifyContent checks the redacted self-reference: substituting a
// fixed-width placeholder for every occurrence of the id value in the
// original payload bytes must digest back to the id itself. The placeholder
// width is derived from the id so the substitution stays length-invariant
// across digest encodings.
func (v *KeyLogVerifier) verifyContent(payloadJSON string, entry domain.LogEntry) error {
	placeholder := strings.Repeat("#", len(entry.ID))
	redacted := strings.ReplaceAll(payloadJSON, entry.ID, placeholder)

	if v.Hasher.Sum(redacted) != entry.ID {
		return domain.ErrSelfReferenceMismatch
	}
	return nil
}
