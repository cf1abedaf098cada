package payment

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Notification is the part of a provider webhook the reconciler reads.
// Status is never taken from it.
type Notification struct {
	Action    string
	Type      string
	PaymentID string
}

// IsPaymentEvent reports whether the notification concerns a payment.
func (n Notification) IsPaymentEvent() bool {
	return strings.HasPrefix(n.Action, "payment.") || n.Type == "payment"
}

// ParseNotification decodes a webhook body. data.id may be a JSON string or
// number; unknown fields are skipped.
func ParseNotification(raw []byte) (Notification, error) {
	var n Notification
	d := jx.DecodeBytes(raw)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "action":
			v, err := DecodeScalar(d)
			n.Action = v
			return err
		case "type":
			v, err := DecodeScalar(d)
			n.Type = v
			return err
		case "data":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "id" {
					return d.Skip()
				}
				v, err := DecodeScalar(d)
				n.PaymentID = strings.TrimSpace(v)
				return err
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return Notification{}, errors.Wrap(err, "decode notification")
	}
	return n, nil
}

// DecodeScalar reads a string or number as a string. Null and other kinds
// yield an empty string.
func DecodeScalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", d.Skip()
	}
}
