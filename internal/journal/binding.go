package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Binding is the persisted task to folder to share triple.
//
// An empty ShareID means no share is believed valid: either provisioning is in
// flight or the last mint failed. It is encoded as JSON null.
type Binding struct {
	TaskID     string
	FolderPath string
	ShareID    string
}

// HasShare reports whether the binding currently records a public share.
func (b Binding) HasShare() bool {
	return b.ShareID != ""
}

type bindingJSON struct {
	TaskID     flexString  `json:"task_id"`
	FolderPath string      `json:"folder_path"`
	ShareID    *flexString `json:"share_id"`
}

func (b Binding) MarshalJSON() ([]byte, error) {
	payload := struct {
		TaskID     string  `json:"task_id"`
		FolderPath string  `json:"folder_path"`
		ShareID    *string `json:"share_id"`
	}{TaskID: b.TaskID, FolderPath: b.FolderPath}
	if b.ShareID != "" {
		id := b.ShareID
		payload.ShareID = &id
	}
	return marshalRaw(payload)
}

// marshalRaw encodes v without escaping HTML characters so folder names
// survive byte-for-byte in the journal file.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (b *Binding) UnmarshalJSON(data []byte) error {
	var raw bindingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.TaskID = string(raw.TaskID)
	b.FolderPath = raw.FolderPath
	b.ShareID = ""
	if raw.ShareID != nil {
		b.ShareID = string(*raw.ShareID)
	}
	return nil
}

// flexString accepts JSON strings and numbers. Older journals stored tracker
// ids as integers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", strings.TrimSpace(string(trimmed)))
	}
	*f = flexString(n.String())
	return nil
}
