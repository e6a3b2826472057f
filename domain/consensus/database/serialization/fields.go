package serialization

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// fieldHandler is called once per field of a record. It returns the number
// of bytes of value it consumed, or a negative protowire error code.
type fieldHandler func(num protowire.Number, typ protowire.Type, value []byte) (int, error)

// consumeFields walks the fields of a protobuf-encoded record. Fields
// unknown to handle are skipped when it returns 0.
func consumeFields(record []byte, handle fieldHandler) error {
	for len(record) > 0 {
		num, typ, n := protowire.ConsumeTag(record)
		if n < 0 {
			return errors.WithStack(protowire.ParseError(n))
		}
		record = record[n:]

		consumed, err := handle(num, typ, record)
		if err != nil {
			return err
		}
		if consumed == 0 {
			consumed = protowire.ConsumeFieldValue(num, typ, record)
		}
		if consumed < 0 {
			return errors.WithStack(protowire.ParseError(consumed))
		}
		record = record[consumed:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, value []byte, out *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, errors.Errorf("expected a varint, got wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(value)
	if n < 0 {
		return 0, errors.WithStack(protowire.ParseError(n))
	}
	*out = v
	return n, nil
}

func consumeBytes(typ protowire.Type, value []byte, out *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, errors.Errorf("expected length-delimited bytes, got wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(value)
	if n < 0 {
		return 0, errors.WithStack(protowire.ParseError(n))
	}
	*out = append([]byte(nil), v...)
	return n, nil
}

func consumeHash(typ protowire.Type, value []byte, out *chainhash.Hash) (int, error) {
	var hashBytes []byte
	n, err := consumeBytes(typ, value, &hashBytes)
	if err != nil {
		return 0, err
	}
	hash, err := chainhash.NewHash(hashBytes)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	*out = *hash
	return n, nil
}

func appendVarintField(record []byte, num protowire.Number, value uint64) []byte {
	record = protowire.AppendTag(record, num, protowire.VarintType)
	return protowire.AppendVarint(record, value)
}

func appendBytesField(record []byte, num protowire.Number, value []byte) []byte {
	record = protowire.AppendTag(record, num, protowire.BytesType)
	return protowire.AppendBytes(record, value)
}

func appendBoolField(record []byte, num protowire.Number, value bool) []byte {
	return appendVarintField(record, num, protowire.EncodeBool(value))
}
