package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"sync"
)

// Call describes one invocation of a cacheable function.
type Call struct {
	// Function is the stable identity of the function, usually its module
	// path plus export name.
	Function string
	Kind     Kind
	Args     []any
	// Closure holds the values the function captured from its surroundings.
	Closure map[string]any
	// Excluded lists indexes into Args that vary per request but must not
	// change the key, such as a request-scoped promise.
	Excluded []int
}

// placeholder replaces excluded arguments in the canonical encoding.
var placeholder = []byte(`"$excluded"`)

// maxDepth bounds the serializability walk for self-referencing values.
const maxDepth = 32

// Deriver computes Keys from calls.
//
// Contract:
// - Determinism: equal calls produce equal keys regardless of map order.
// - Concurrency: safe for concurrent use.
// - Errors: ErrNonSerializableArgument when an argument cannot be encoded.
type Deriver struct {
	buildID string
}

// NewDeriver creates a Deriver. buildID separates keys of different deployments.
func NewDeriver(buildID string) *Deriver {
	return &Deriver{buildID: buildID}
}

// Derive returns the key for call.
//
// The digest covers a length-prefixed sequence of fields: build id, function
// identity, kind, each argument and the closure. Arguments are encoded with
// their types, maps in sorted key order.
func (d *Deriver) Derive(call Call) (Key, error) {
	if call.Function == "" {
		return Key{}, fmt.Errorf("%w: function identity is empty", ErrInvalidKey)
	}

	excluded := make(map[int]bool, len(call.Excluded))
	for _, i := range call.Excluded {
		excluded[i] = true
	}

	h := sha256.New()
	writeField(h, []byte(d.buildID))
	writeField(h, []byte(call.Function))
	writeField(h, []byte{byte(call.Kind)})

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(call.Args)))
	h.Write(n[:])

	for i, arg := range call.Args {
		if excluded[i] {
			writeField(h, placeholder)
			continue
		}
		b, err := encodeArg(arg)
		if err != nil {
			return Key{}, fmt.Errorf("argument %d of %s: %w", i, call.Function, err)
		}
		writeField(h, b)
	}

	closure := make(map[string]any, len(call.Closure))
	for k, v := range call.Closure {
		closure[k] = v
	}
	b, err := encodeArg(closure)
	if err != nil {
		return Key{}, fmt.Errorf("closure of %s: %w", call.Function, err)
	}
	writeField(h, b)

	key := Key{kind: call.Kind}
	h.Sum(key.sum[:0])
	return key, nil
}

func writeField(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}

func encodeArg(v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if err := checkSerializable(rv, 0); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeValue(&buf, rv, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	contextType       = reflect.TypeFor[context.Context]()
	closerType        = reflect.TypeFor[io.Closer]()
	lockerType        = reflect.TypeFor[sync.Locker]()
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// encodesItself reports whether t supplies its own stable encoding.
func encodesItself(t reflect.Type) bool {
	return t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType)
}

// checkSerializable rejects values whose identity cannot be captured by an
// encoding: functions, channels, live resources, synchronization state and
// structs whose state is hidden in unexported fields.
func checkSerializable(rv reflect.Value, depth int) error {
	if !rv.IsValid() || depth > maxDepth {
		return nil
	}

	t := rv.Type()
	if t.Kind() != reflect.Interface && (t.Implements(contextType) || t.Implements(closerType) || t.Implements(lockerType)) {
		return fmt.Errorf("%w: %s", ErrNonSerializableArgument, t)
	}
	if t.Kind() != reflect.Interface && encodesItself(t) {
		return nil
	}

	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Errorf("%w: %s", ErrNonSerializableArgument, t)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return checkSerializable(rv.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := checkSerializable(rv.Index(i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if err := checkSerializable(iter.Key(), depth+1); err != nil {
				return err
			}
			if err := checkSerializable(iter.Value(), depth+1); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if !t.Field(i).IsExported() {
				return fmt.Errorf("%w: %s has unexported field %s", ErrNonSerializableArgument, t, t.Field(i).Name)
			}
			if err := checkSerializable(rv.Field(i), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// typeName names t by import path so same-named types of different
// packages stay apart.
func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// encodeValue writes rv as ["<type>",<payload>]. Untyped values are null.
// The type keeps apart values whose payloads agree, such as 1 and 1.0 or a
// byte slice and a string.
func encodeValue(buf *bytes.Buffer, rv reflect.Value, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: nested deeper than %d", ErrNonSerializableArgument, maxDepth)
	}
	if !rv.IsValid() {
		buf.WriteString("null")
		return nil
	}
	buf.WriteByte('[')
	buf.WriteString(strconv.Quote(typeName(rv.Type())))
	buf.WriteByte(',')
	if err := encodePayload(buf, rv, depth); err != nil {
		return err
	}
	buf.WriteByte(']')
	return nil
}

func encodePayload(buf *bytes.Buffer, rv reflect.Value, depth int) error {
	t := rv.Type()
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
	}
	if rv.Kind() != reflect.Interface && encodesItself(t) && rv.CanInterface() {
		b, err := json.Marshal(rv.Interface())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNonSerializableArgument, err)
		}
		buf.Write(b)
		return nil
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return encodeValue(buf, rv.Elem(), depth+1)
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString(strconv.Quote(strconv.FormatFloat(f, 'g', -1, t.Bits())))
			break
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, t.Bits()))
	case reflect.String:
		buf.WriteString(strconv.Quote(rv.String()))
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			buf.WriteString(strconv.Quote(hex.EncodeToString(b)))
			break
		}
		buf.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, rv.Index(i), depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case reflect.Map:
		return encodeMap(buf, rv, depth)
	case reflect.Struct:
		buf.WriteByte('{')
		for i := 0; i < rv.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				return fmt.Errorf("%w: %s has unexported field %s", ErrNonSerializableArgument, t, f.Name)
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Quote(f.Name))
			buf.WriteByte(':')
			if err := encodeValue(buf, rv.Field(i), depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: %s", ErrNonSerializableArgument, t)
	}
	return nil
}

// encodeMap writes a map as [[key,value],...] sorted by encoded key, so the
// encoding does not depend on iteration order.
func encodeMap(buf *bytes.Buffer, rv reflect.Value, depth int) error {
	type pair struct{ k, v []byte }
	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		var kb, vb bytes.Buffer
		if err := encodeValue(&kb, iter.Key(), depth+1); err != nil {
			return err
		}
		if err := encodeValue(&vb, iter.Value(), depth+1); err != nil {
			return err
		}
		pairs = append(pairs, pair{kb.Bytes(), vb.Bytes()})
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].k, pairs[j].k) < 0 })

	buf.WriteByte('[')
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		buf.Write(p.k)
		buf.WriteByte(',')
		buf.Write(p.v)
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
	return nil
}
