package cache

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Kind selects the handler and the sharing rules of an entry.
type Kind uint8

const (
	// KindPublic entries are shared by every request and live in the
	// process-local handler.
	KindPublic Kind = iota
	// KindPrivate entries are scoped to one caller and may read identity
	// inputs such as cookies and headers.
	KindPrivate
	// KindRemote entries are shared across processes via the remote handler.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindPublic:
		return "public"
	case KindPrivate:
		return "private"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name. "default" and "" mean KindPublic.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "default", "public":
		return KindPublic, nil
	case "private":
		return KindPrivate, nil
	case "remote":
		return KindRemote, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindPublic, KindPrivate, KindRemote}
}

// Key identifies one cache entry. Keys are comparable and safe as map keys.
type Key struct {
	kind Kind
	sum  [sha256.Size]byte
}

// Kind returns the kind the key was derived for.
func (k Key) Kind() Kind { return k.kind }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k == Key{} }

// String renders the key as "<kind>:<hex sum>".
func (k Key) String() string {
	return k.kind.String() + ":" + hex.EncodeToString(k.sum[:])
}

// Scoped folds a caller secret into the key so the same call made by two
// callers never resolves to the same entry. secret must be non-empty and
// unique to the caller.
func (k Key) Scoped(secret []byte) Key {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte{byte(k.kind)})
	mac.Write(k.sum[:])
	out := Key{kind: k.kind}
	copy(out.sum[:], mac.Sum(nil))
	return out
}
