package constant

// SECS item formats a tag can be batched under.
const (
	DataTypeA  = "A"
	DataTypeU2 = "U2"
	DataTypeU4 = "U4"
	DataTypeF4 = "F4"
)

// DataTypeGroups is the order in which batched reads are issued each tick.
var DataTypeGroups = []string{DataTypeA, DataTypeU2, DataTypeU4, DataTypeF4}

var supportedDataType = map[string]struct{}{
	DataTypeA:  {},
	DataTypeU2: {},
	DataTypeU4: {},
	DataTypeF4: {},
}

func IsSupportedDataType(dt string) bool {
	_, ok := supportedDataType[dt]
	return ok
}
