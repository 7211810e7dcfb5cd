package auth

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/apikey-auth/pkg/apikey"
)

// EncodeClaims writes claims as a JSON array of {"type","value"} objects.
func EncodeClaims(claims []apikey.Claim) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	WriteClaims(e, claims)
	return append([]byte(nil), e.Bytes()...)
}

// WriteClaims encodes claims into e.
func WriteClaims(e *jx.Encoder, claims []apikey.Claim) {
	e.ArrStart()
	for _, c := range claims {
		e.ObjStart()
		e.FieldStart("type")
		e.Str(c.Type)
		e.FieldStart("value")
		e.Str(c.Value)
		e.ObjEnd()
	}
	e.ArrEnd()
}

// DecodeClaims parses the output of EncodeClaims. Empty input and null
// decode to no claims.
func DecodeClaims(data []byte) ([]apikey.Claim, error) {
	if len(data) == 0 {
		return nil, nil
	}
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return nil, d.Null()
	}

	var claims []apikey.Claim
	if err := d.Arr(func(d *jx.Decoder) error {
		var c apikey.Claim
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "type":
				c.Type, err = d.Str()
			case "value":
				c.Value, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		if c.Type == "" {
			return errors.New("claim type is empty")
		}
		claims = append(claims, c)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode claims")
	}
	return claims, nil
}
