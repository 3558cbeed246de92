package record

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	case uint16:
		return int64(n)
	default:
		return 0
	}
}

func asInt32(v interface{}) int32 {
	switch n := v.(type) {
	case int32:
		return n
	case int:
		return int32(n)
	case int64:
		return int32(n)
	default:
		return 0
	}
}

func asUint32(v interface{}) uint32 {
	switch n := v.(type) {
	case uint32:
		return n
	case int:
		return uint32(n)
	case int64:
		return uint32(n)
	default:
		return 0
	}
}

func asUint16(v interface{}) uint16 {
	switch n := v.(type) {
	case uint16:
		return n
	case int:
		return uint16(n)
	case int64:
		return uint16(n)
	default:
		return 0
	}
}

func asUint8(v interface{}) uint8 {
	switch n := v.(type) {
	case uint8:
		return n
	case int:
		return uint8(n)
	case int64:
		return uint8(n)
	default:
		return 0
	}
}
