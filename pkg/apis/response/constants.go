package response

type ErrCode int

const (
	_                                 ErrCode = 10000 + iota
	ErrCodeMalformedJSON                      // 10001
	ErrCodeRequestBody                        // 10002
	ErrCodeResourceExists                     // 10003
	ErrCodeResourceNotFound                   // 10004
	ErrCodeDeviceNotFound                     // 10005
	ErrCodeDeviceExists                       // 10006
	ErrCodeImmutable                          // 10007
	ErrCodeUnsupportedProtocol                // 10008
	ErrCodeSessionNotConnected                // 10009
	ErrCodeInvalidDevice                      // 10010
	ErrCodeTooManyJsonPatchOperations         // 10011
	ErrCodeDeviceOperatorUnSupported          // 10012
)

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end, and append comment of number
// Meanwhile, the corresponding error message SHOULD be appended in response.errors
// The order MUST be consistent between them
