package oratype

// Oracle type numbers the decoders dispatch on.
const (
	TypeVarchar2      = 1
	TypeNumber        = 2
	TypeBinaryInteger = 3
	TypeLong          = 8
	TypeDate          = 12
	TypeRaw           = 23
	TypeLongRaw       = 24
	TypeChar          = 96
	TypeCLOB          = 112
	TypeBLOB          = 113
	TypeTimestamp     = 180
	TypeTimestampTZ   = 181
)
