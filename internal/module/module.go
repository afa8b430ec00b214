// Package module holds the in-memory record for a loaded rule: its
// compiled WASM artifact, its resource limits, and the small set of guarded
// mutable cells (storage usage, persistent response) the host ABI touches
// on every invocation.
package module

import (
	"sync"

	"github.com/tetratelabs/wazero"
)

// LimitValue is either an unbounded quantity or a hard ceiling, mirroring
// the loader's per-module storage quota configuration.
type LimitValue struct {
	unlimited bool
	limit     uint64
}

// Unlimited returns a LimitValue with no ceiling.
func Unlimited() LimitValue { return LimitValue{unlimited: true} }

// Limit returns a LimitValue capped at n.
func Limit(n uint64) LimitValue { return LimitValue{limit: n} }

func (v LimitValue) IsUnlimited() bool { return v.unlimited }

// Exceeds reports whether usage exceeds this limit. An unlimited value
// never exceeds.
func (v LimitValue) Exceeds(usage uint64) bool {
	return !v.unlimited && usage > v.limit
}

// PersistentResponse is the optional GET-response cell a module may
// configure: a module sets a response body that out-of-band GET requests
// can read without re-invoking the rule, subject to a maximum size.
type PersistentResponse struct {
	MaxSizeBytes uint64

	mu   sync.RWMutex
	body *string
}

// Get returns the currently stored response body, if any.
func (p *PersistentResponse) Get() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.body == nil {
		return "", false
	}
	return *p.body, true
}

// Clear drops any stored response body. The dispatcher never calls it: a
// failed invocation or one that sets no response leaves the cell as it was.
func (p *PersistentResponse) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = nil
}

// TrySet stores body if it fits within MaxSizeBytes. Returns false if it is
// too large, in which case the previous value (or absence of one) is left
// untouched and nothing is stored.
func (p *PersistentResponse) TrySet(body string) bool {
	if uint64(len(body)) > p.MaxSizeBytes {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = &body
	return true
}

// Module is an immutable-by-convention rule record plus its guarded
// mutable accounting cells. Fields other than StorageCurrent and
// Persistent are set once at load time and never mutated afterward.
type Module struct {
	Name    string
	Logtype string

	Runtime  wazero.Runtime
	Compiled wazero.CompiledModule
	Imports  []string

	ComputationLimit uint64
	PageLimit        uint32
	StorageLimit     LimitValue

	Secrets       map[string]string
	AccessoryData map[string]string

	Persistent *PersistentResponse

	TestMode bool

	// ConcurrencyUnsafe, when non-nil, serializes invocations of this
	// module: the dispatcher must hold it for the duration of the guest
	// call. Modules that declare themselves safe for concurrent
	// invocation leave this nil.
	ConcurrencyUnsafe *sync.Mutex

	storageMu      sync.Mutex
	storageCurrent uint64
}

// StorageCurrent returns the module's current persistent-storage usage in
// bytes, as tracked since load (or since the last ResetStorageCurrent).
func (m *Module) StorageCurrent() uint64 {
	m.storageMu.Lock()
	defer m.storageMu.Unlock()
	return m.storageCurrent
}

// ResetStorageCurrent sets the usage counter, used by the loader to seed it
// from the backend's actual namespace size at startup.
func (m *Module) ResetStorageCurrent(n uint64) {
	m.storageMu.Lock()
	defer m.storageMu.Unlock()
	m.storageCurrent = n
}

// ReserveWrite computes the namespace usage that would result from writing
// a key/value pair of the given lengths, replacing any existing entry of
// existingLen bytes (0 if the key is new). It returns the projected usage
// and whether the module's storage limit permits it; on success the
// counter is NOT yet updated — call CommitWrite after the backend write
// succeeds.
func (m *Module) ReserveWrite(existingLen, keyLen, newValueLen int) (wouldBeUsed uint64, ok bool) {
	m.storageMu.Lock()
	defer m.storageMu.Unlock()

	current := m.storageCurrent
	existing := uint64(0)
	if existingLen > 0 {
		existing = uint64(existingLen) + uint64(keyLen)
	}
	added := uint64(keyLen) + uint64(newValueLen)
	wouldBeUsed = current + added - existing // current >= existing always holds
	if m.StorageLimit.Exceeds(wouldBeUsed) {
		return wouldBeUsed, false
	}
	return wouldBeUsed, true
}

// CommitWrite finalizes a usage figure previously computed by ReserveWrite,
// called only after the backend write has succeeded.
func (m *Module) CommitWrite(wouldBeUsed uint64) {
	m.storageMu.Lock()
	defer m.storageMu.Unlock()
	m.storageCurrent = wouldBeUsed
}

// CommitDelete decrements usage by the size of a deleted key/value pair.
func (m *Module) CommitDelete(keyLen, deletedValueLen int) {
	m.storageMu.Lock()
	defer m.storageMu.Unlock()
	dec := uint64(keyLen) + uint64(deletedValueLen)
	if dec > m.storageCurrent {
		m.storageCurrent = 0
		return
	}
	m.storageCurrent -= dec
}
