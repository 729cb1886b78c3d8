package response

var errors = map[ErrCode]string{
	ErrCodeMalformedJSON:              "The JSON you provided was not well-formed or did not validate against our published format.",
	ErrCodeRequestBody:                "Request body error",
	ErrCodeResourceExists:             "Resource %s already exists.",
	ErrCodeResourceNotFound:           "Resource %s not found.",
	ErrCodeDeviceNotFound:             "Device %s not found.",
	ErrCodeDeviceExists:               "Device %s already exists.",
	ErrCodeImmutable:                  "Field %s is immutable.",
	ErrCodeUnsupportedProtocol:        "Operation is not supported when the bridge runs %s.",
	ErrCodeSessionNotConnected:        "Session to the device server is not connected.",
	ErrCodeInvalidDevice:              "Invalid device: %s",
	ErrCodeTooManyJsonPatchOperations: "The number of JSON patch operations exceeds the limit of %d.",
	ErrCodeDeviceOperatorUnSupported:  "Device operation %s is not supported.",
}

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end of enum firstly.

var ErrMalformedJSON = &responseError{
	Code:    ErrCodeMalformedJSON,
	Message: errors[ErrCodeMalformedJSON],
}

var ErrRequestBody = &responseError{
	Code:    ErrCodeRequestBody,
	Message: errors[ErrCodeRequestBody],
}

var ErrSessionNotConnected = &responseError{
	Code:    ErrCodeSessionNotConnected,
	Message: errors[ErrCodeSessionNotConnected],
}
