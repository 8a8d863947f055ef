// internal/models/client.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// JSON keys owned by the local store. They never leave the device.
const (
	FieldClientID  = "idCliente"
	FieldCreatedAt = "fechaCreacion"
	FieldSyncedAt  = "fechaSincronizacion"
)

// ClientRecord is one surveyed business. Profile fields are free-form and
// flattened next to the local bookkeeping keys when serialized.
type ClientRecord struct {
	ID        string
	CreatedAt string
	SyncedAt  string
	Fields    map[string]interface{}
}

// IsPending reports whether the record still waits for a push run.
func (c ClientRecord) IsPending() bool {
	return c.SyncedAt == ""
}

// NumericID parses the leading digits of ID, returning 0 when there are none.
func (c ClientRecord) NumericID() int {
	return leadingInt(c.ID)
}

// Field returns a profile field as trimmed text, or "" when absent.
func (c ClientRecord) Field(key string) string {
	v, ok := c.Fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// RemotePayload is the record as sent to the root endpoint, without the
// locally owned keys.
func (c ClientRecord) RemotePayload() map[string]interface{} {
	out := make(map[string]interface{}, len(c.Fields))
	for k, v := range c.Fields {
		switch k {
		case FieldClientID, FieldCreatedAt, FieldSyncedAt:
			continue
		}
		out[k] = v
	}
	return out
}

func (c ClientRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Fields)+3)
	for k, v := range c.Fields {
		out[k] = v
	}
	out[FieldClientID] = c.ID
	out[FieldCreatedAt] = c.CreatedAt
	out[FieldSyncedAt] = c.SyncedAt
	return json.Marshal(out)
}

func (c *ClientRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("client record must be a JSON object")
	}

	c.ID = looseString(raw[FieldClientID])
	c.CreatedAt = looseString(raw[FieldCreatedAt])
	c.SyncedAt = looseString(raw[FieldSyncedAt])

	delete(raw, FieldClientID)
	delete(raw, FieldCreatedAt)
	delete(raw, FieldSyncedAt)
	c.Fields = raw
	return nil
}

func looseString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// SocialNetwork maps a profile field holding a handle to its remote id.
type SocialNetwork struct {
	Field string
	ID    int
}

// SocialNetworks is ordered; dependent writes follow this order.
var SocialNetworks = []SocialNetwork{
	{Field: "facebook", ID: 1},
	{Field: "instagram", ID: 2},
	{Field: "tiktok", ID: 3},
	{Field: "paginaWeb", ID: 4},
}
