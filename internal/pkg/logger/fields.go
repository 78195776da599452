package logger

import "go.uber.org/zap"

// Field constructors shared across packages so the same key is spelled the
// same way everywhere.

func RequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

func Component(name string) zap.Field {
	return zap.String("component", name)
}

func Operation(name string) zap.Field {
	return zap.String("operation", name)
}

func Resource(path string) zap.Field {
	return zap.String("resource", path)
}

func AddressID(id string) zap.Field {
	return zap.String("address_id", id)
}

func Mode(name string) zap.Field {
	return zap.String("mode", name)
}

func Duration(ms int64) zap.Field {
	return zap.Int64("duration_ms", ms)
}

func HTTPStatus(status int) zap.Field {
	return zap.Int("http_status", status)
}

// ErrorField is zap.Error that drops nil errors
func ErrorField(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.Error(err)
}
