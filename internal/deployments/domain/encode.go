package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrEncoding is returned when constructor arguments do not fit the constructor
var ErrEncoding = errors.New("encoding error")

// EncodeConstructorArgs converts textual arguments to the constructor's
// parameter types and ABI-encodes them. Array arguments are JSON arrays,
// e.g. `["0xabc...","0xdef..."]`. Tuple arguments are JSON objects keyed by
// component name, or JSON arrays in component order.
func EncodeConstructorArgs(inputs abi.Arguments, args []string) ([]byte, error) {
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("%w: constructor takes %d arguments, got %d", ErrEncoding, len(inputs), len(args))
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	values := make([]any, len(inputs))
	for i, in := range inputs {
		v, err := convertArg(in.Type, strings.TrimSpace(args[i]))
		if err != nil {
			name := in.Name
			if name == "" {
				name = "#" + strconv.Itoa(i)
			}
			return nil, fmt.Errorf("%w: argument %s (%s): %v", ErrEncoding, name, in.Type.String(), err)
		}
		values[i] = v.Interface()
	}

	packed, err := inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return packed, nil
}

func convertArg(t abi.Type, raw string) (reflect.Value, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return reflect.Value{}, fmt.Errorf("invalid address %q", raw)
		}
		return reflect.ValueOf(common.HexToAddress(raw)), nil

	case abi.BoolTy:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid bool %q", raw)
		}
		return reflect.ValueOf(b), nil

	case abi.StringTy:
		return reflect.ValueOf(raw), nil

	case abi.BytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid bytes %q: %v", raw, err)
		}
		return reflect.ValueOf(b), nil

	case abi.FixedBytesTy, abi.HashTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("invalid bytes%d %q: %v", t.Size, raw, err)
		}
		if len(b) != t.Size {
			return reflect.Value{}, fmt.Errorf("want %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr, nil

	case abi.IntTy, abi.UintTy:
		return convertInt(t, raw)

	case abi.SliceTy, abi.ArrayTy:
		return convertList(t, raw)

	case abi.TupleTy:
		return convertTuple(t, raw)

	default:
		return reflect.Value{}, fmt.Errorf("unsupported parameter type %s", t.String())
	}
}

func convertInt(t abi.Type, raw string) (reflect.Value, error) {
	n, ok := new(big.Int).SetString(raw, 0)
	if !ok {
		return reflect.Value{}, fmt.Errorf("invalid integer %q", raw)
	}

	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return reflect.Value{}, fmt.Errorf("%s out of range for uint%d", raw, t.Size)
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return reflect.Value{}, fmt.Errorf("%s out of range for int%d", raw, t.Size)
		}
	}

	// sizes 8..64 pack from native Go integers, everything else from *big.Int
	typ := t.GetType()
	switch typ.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v := reflect.New(typ).Elem()
		v.SetInt(n.Int64())
		return v, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v := reflect.New(typ).Elem()
		v.SetUint(n.Uint64())
		return v, nil
	default:
		return reflect.ValueOf(n), nil
	}
}

func convertList(t abi.Type, raw string) (reflect.Value, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return reflect.Value{}, fmt.Errorf("want a JSON array: %v", err)
	}
	if t.T == abi.ArrayTy && len(items) != t.Size {
		return reflect.Value{}, fmt.Errorf("want %d elements, got %d", t.Size, len(items))
	}

	var list reflect.Value
	if t.T == abi.ArrayTy {
		list = reflect.New(t.GetType()).Elem()
	} else {
		list = reflect.MakeSlice(t.GetType(), len(items), len(items))
	}
	for i, item := range items {
		v, err := convertArg(*t.Elem, unquote(item))
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %v", i, err)
		}
		list.Index(i).Set(v)
	}
	return list, nil
}

func convertTuple(t abi.Type, raw string) (reflect.Value, error) {
	var items []json.RawMessage
	if strings.HasPrefix(raw, "{") {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return reflect.Value{}, fmt.Errorf("want a JSON object: %v", err)
		}
		for _, name := range t.TupleRawNames {
			item, ok := fields[name]
			if !ok {
				return reflect.Value{}, fmt.Errorf("missing field %q", name)
			}
			items = append(items, item)
		}
		if len(fields) != len(t.TupleRawNames) {
			return reflect.Value{}, fmt.Errorf("want fields %s", strings.Join(t.TupleRawNames, ", "))
		}
	} else if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return reflect.Value{}, fmt.Errorf("want a JSON object or array: %v", err)
	}
	if len(items) != len(t.TupleElems) {
		return reflect.Value{}, fmt.Errorf("want %d components, got %d", len(t.TupleElems), len(items))
	}

	// fields of the generated struct follow component order
	tuple := reflect.New(t.GetType()).Elem()
	for i, item := range items {
		v, err := convertArg(*t.TupleElems[i], unquote(item))
		if err != nil {
			return reflect.Value{}, fmt.Errorf("component %s: %v", t.TupleRawNames[i], err)
		}
		tuple.Field(i).Set(v)
	}
	return tuple, nil
}

// unquote returns JSON strings without quotes and anything else verbatim
func unquote(item json.RawMessage) string {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(item))
}
