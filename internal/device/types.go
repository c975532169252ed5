package device

// Field names with meaning to the client.
const (
	FieldID         = "device_id"
	FieldStatus     = "status"
	FieldType       = "device_type"
	FieldName       = "name"
	FieldOccupiedBy = "occupied_by"
)

// Device status values reported by the server.
const (
	StatusOnline      = "online"
	StatusOffline     = "offline"
	StatusOccupied    = "occupied"
	StatusMaintenance = "maintenance"
)

// Record is one device as sent by the server, keyed by JSON field name.
type Record map[string]any

// ID returns the device_id, or "" when missing or not a string.
func (r Record) ID() string {
	return r.str(FieldID)
}

// Status returns the status field.
func (r Record) Status() string {
	return r.str(FieldStatus)
}

// Type returns the device_type field.
func (r Record) Type() string {
	return r.str(FieldType)
}

// Name returns the name field.
func (r Record) Name() string {
	return r.str(FieldName)
}

func (r Record) str(key string) string {
	s, _ := r[key].(string)
	return s
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return Record(deepCopyMap(r))
}

// Stats is the server's aggregate view of the fleet.
type Stats struct {
	Total    int            `json:"total_devices"`
	Online   int            `json:"online_devices"`
	Occupied int            `json:"occupied_devices"`
	Offline  int            `json:"offline_devices"`
	ByType   map[string]int `json:"devices_by_type"`
}

// Clone returns a copy of s with its own ByType map.
func (s Stats) Clone() Stats {
	cpy := s
	if s.ByType != nil {
		cpy.ByType = make(map[string]int, len(s.ByType))
		for k, v := range s.ByType {
			cpy.ByType[k] = v
		}
	}
	return cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied to prevent shared references.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case Record:
		return Record(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	case []string:
		return append([]string(nil), val...)
	default:
		// Primitives (string, bool, float64, nil) are safe to copy by value
		return v
	}
}
