package governance

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "pegcore/core/errors"
)

var errEmptyParam = errors.New("governance: parameter name required")

// Authorizer gates every parameter setter. Implementations decide whether
// caller may change the named parameter.
type Authorizer interface {
	Authorize(caller common.Address, param string) error
}

// AllowList authorises changers by address. Each changer may optionally be
// restricted to a subset of parameter keys; an empty subset allows every key.
type AllowList struct {
	mu       sync.RWMutex
	changers map[common.Address]map[string]struct{}
}

// NewAllowList constructs an allow list granting full access to changers.
func NewAllowList(changers ...common.Address) *AllowList {
	list := &AllowList{changers: make(map[common.Address]map[string]struct{})}
	for _, changer := range changers {
		list.Grant(changer)
	}
	return list
}

// NormalizeParam canonicalises parameter keys for consistent lookups.
func NormalizeParam(param string) string {
	return strings.ToLower(strings.TrimSpace(param))
}

// Grant authorises changer for the supplied parameter keys, or for every key
// when none are supplied.
func (l *AllowList) Grant(changer common.Address, params ...string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowed := make(map[string]struct{}, len(params))
	for _, param := range params {
		if key := NormalizeParam(param); key != "" {
			allowed[key] = struct{}{}
		}
	}
	l.changers[changer] = allowed
}

// Revoke removes changer from the allow list.
func (l *AllowList) Revoke(changer common.Address) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.changers, changer)
}

// Changers lists the authorised addresses in ascending order.
func (l *AllowList) Changers() []common.Address {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]common.Address, 0, len(l.changers))
	for addr := range l.changers {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Authorize implements Authorizer.
func (l *AllowList) Authorize(caller common.Address, param string) error {
	key := NormalizeParam(param)
	if key == "" {
		return errEmptyParam
	}
	if l == nil {
		return coreerrors.ErrNotAuthorizedChanger
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	allowed, ok := l.changers[caller]
	if !ok {
		return coreerrors.ErrNotAuthorizedChanger
	}
	if len(allowed) == 0 {
		return nil
	}
	if _, ok := allowed[key]; !ok {
		return coreerrors.ErrNotAuthorizedChanger
	}
	return nil
}

// DenyAll rejects every change.
type DenyAll struct{}

// Authorize implements Authorizer.
func (DenyAll) Authorize(common.Address, string) error {
	return coreerrors.ErrNotAuthorizedChanger
}
