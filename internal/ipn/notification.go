/**
 * @description
 * Parsing and modeling of inbound JVZoo IPN notifications. JVZoo posts
 * form-encoded bodies by default but some integrations relay JSON, so both
 * are accepted. Field names follow the JVZoo contract (ctransaction,
 * cproditem, ccustemail, cverify, ...).
 */
package ipn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Transaction types reported by JVZoo.
const (
	TypeSale         = "SALE"
	TypeRefund       = "RFND"
	TypeChargeback   = "CGBK"
	TypeInstallment  = "INSTAL"
	TypeCancelRebill = "CANCEL-REBILL"
)

// Field names in the IPN payload.
const (
	FieldTransactionType = "ctransaction"
	FieldProductCode     = "cproditem"
	FieldCustomerEmail   = "ccustemail"
	FieldVerify          = "cverify"
	FieldReceipt         = "ctransreceipt"
	FieldCustomerName    = "ccustname"
	FieldCustomerCountry = "ccustcc"
	FieldCustomerState   = "ccuststate"
	FieldAmount          = "ctransamount"
	FieldAffiliate       = "ctransaffiliate"
	FieldAffiliateID     = "caffitid"
	FieldVendorThru      = "cvendthru"
)

// ErrMissingFields is returned when a payload lacks any of the required IPN
// fields. The webhook still acknowledges such payloads with HTTP 200.
var ErrMissingFields = errors.New("missing required IPN fields")

const maxBodyBytes = 1 << 20 // 1MiB

// Notification is one parsed IPN payload plus the raw field map needed for
// signature verification.
type Notification struct {
	TransactionType string
	TransactionID   string
	ProductCode     string
	CustomerEmail   string
	VerifyHash      string

	fields  map[string]string
	rawBody []byte
}

// ParseRequest reads and parses an IPN request body. It returns
// ErrMissingFields when any required field is absent or blank.
func ParseRequest(r *http.Request) (*Notification, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read IPN body: %w", err)
	}

	contentType := r.Header.Get("Content-Type")
	if mediaType, _, mtErr := mime.ParseMediaType(contentType); mtErr == nil {
		contentType = mediaType
	}

	var fields map[string]string
	if contentType == "application/json" {
		fields, err = parseJSONFields(body)
	} else {
		fields, err = parseFormFields(body)
	}
	if err != nil {
		return nil, err
	}

	n, err := FromFields(fields)
	if err != nil {
		return nil, err
	}
	n.rawBody = body
	return n, nil
}

// FromFields builds a notification from an already-decoded field map,
// applying the same required-field validation as ParseRequest.
func FromFields(fields map[string]string) (*Notification, error) {
	n := &Notification{
		TransactionType: strings.ToUpper(strings.TrimSpace(fields[FieldTransactionType])),
		TransactionID:   strings.TrimSpace(fields[FieldReceipt]),
		ProductCode:     strings.TrimSpace(fields[FieldProductCode]),
		CustomerEmail:   strings.TrimSpace(fields[FieldCustomerEmail]),
		VerifyHash:      strings.TrimSpace(fields[FieldVerify]),
		fields:          fields,
	}

	if n.TransactionType == "" || n.ProductCode == "" || n.CustomerEmail == "" || n.VerifyHash == "" {
		return nil, ErrMissingFields
	}
	// The receipt doubles as the external transaction id. JVZoo always sends
	// it; a payload without one cannot be deduplicated and is rejected.
	if n.TransactionID == "" {
		return nil, ErrMissingFields
	}

	return n, nil
}

func parseFormFields(body []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse IPN form body: %w", err)
	}
	fields := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		} else {
			fields[k] = ""
		}
	}
	return fields, nil
}

func parseJSONFields(body []byte) (map[string]string, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse IPN JSON body: %w", err)
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch value := v.(type) {
		case string:
			fields[k] = value
		case float64:
			fields[k] = strconv.FormatFloat(value, 'f', -1, 64)
		case bool:
			fields[k] = strconv.FormatBool(value)
		case nil:
			fields[k] = ""
		default:
			encoded, _ := json.Marshal(value)
			fields[k] = string(encoded)
		}
	}
	return fields, nil
}

// Fields returns the full field map as received, for signature verification.
func (n *Notification) Fields() map[string]string {
	return n.fields
}

// RawBody returns the payload bytes as received, stored on the audit record.
func (n *Notification) RawBody() []byte {
	return n.rawBody
}

// Field returns one raw field value, trimmed.
func (n *Notification) Field(name string) string {
	return strings.TrimSpace(n.fields[name])
}

// OptionalField returns a pointer to the trimmed value, or nil when blank.
func (n *Notification) OptionalField(name string) *string {
	v := n.Field(name)
	if v == "" {
		return nil
	}
	return &v
}

// AmountCents parses a decimal currency field (e.g. "9.95") into cents.
// Malformed or absent values come back as zero; a bad amount must not block
// license processing.
func (n *Notification) AmountCents(name string) int64 {
	v := n.Field(name)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// KnownType reports whether the transaction type is one this system handles.
func (n *Notification) KnownType() bool {
	switch n.TransactionType {
	case TypeSale, TypeRefund, TypeChargeback, TypeInstallment, TypeCancelRebill:
		return true
	}
	return false
}
